package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/scrapeworks/follower-enrich/internal/config"
	"github.com/scrapeworks/follower-enrich/pkg/enrich"
	"github.com/scrapeworks/follower-enrich/pkg/logging"
	"github.com/scrapeworks/follower-enrich/pkg/provider"
)

// usernameResolver resolves an account handle to a provider user id.
type usernameResolver interface {
	ResolveUsername(ctx context.Context, username string) (string, error)
}

// enricher runs one page enrichment.
type enricher interface {
	Enrich(ctx context.Context, params enrich.Params) (*enrich.ResponsePayload, error)
}

type api struct {
	cfg      *config.Config
	resolver usernameResolver
	pipeline enricher
	logger   zerolog.Logger
}

// newRouter builds the gin engine with all routes.
func newRouter(cfg *config.Config, resolver usernameResolver, pipeline enricher) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	a := &api{
		cfg:      cfg,
		resolver: resolver,
		pipeline: pipeline,
		logger:   logging.NewLogger("api"),
	}

	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/followers_enriched", a.handleFollowersEnriched)

	return router
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// debugResponse wraps the payload with request-level diagnostics when
// the caller passes debug=1.
type debugResponse struct {
	*enrich.ResponsePayload
	Debug gin.H `json:"debug"`
}

// handleFollowersEnriched serves GET /followers_enriched.
//
// Query:
//   - username OR user_id
//   - page_size (default from config)
//   - min_followers (default from config)
//   - workers (1..8, default from config)
//   - cursor (pass previous next_cursor)
//   - debug=1 to include debug info
func (a *api) handleFollowersEnriched(c *gin.Context) {
	username := c.Query("username")
	userID := c.Query("user_id")
	if username == "" && userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provide 'username' or 'user_id'"})
		return
	}

	pageSize, ok := intQuery(c, "page_size", a.cfg.Defaults.PageSize)
	if !ok {
		return
	}
	minFollowers, ok := intQuery(c, "min_followers", a.cfg.Defaults.MinFollowers)
	if !ok {
		return
	}
	workers, ok := intQuery(c, "workers", a.cfg.Defaults.Workers)
	if !ok {
		return
	}
	workers = enrich.ClampWorkers(workers)

	ctx, cancel := context.WithTimeout(c.Request.Context(), a.cfg.HTTP.RequestTimeout)
	defer cancel()

	account := username
	if account == "" {
		account = userID
	}

	if userID == "" {
		resolved, err := a.resolver.ResolveUsername(ctx, username)
		if err != nil {
			a.writeError(c, err)
			return
		}
		userID = resolved
	}

	payload, err := a.pipeline.Enrich(ctx, enrich.Params{
		Account:      account,
		UserID:       userID,
		PageSize:     pageSize,
		MinFollowers: minFollowers,
		Workers:      workers,
		Cursor:       c.Query("cursor"),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}

	if c.Query("debug") == "1" {
		c.JSON(http.StatusOK, debugResponse{
			ResponsePayload: payload,
			Debug: gin.H{
				"page_size_requested": pageSize,
				"workers":             workers,
				"failed_lookups":      payload.Failed,
			},
		})
		return
	}

	c.JSON(http.StatusOK, payload)
}

// writeError maps pipeline and provider failures to HTTP status codes:
// retry exhaustion to 503, terminal provider errors to 502, request
// timeout to 504.
func (a *api) writeError(c *gin.Context, err error) {
	a.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")

	switch {
	case errors.Is(err, provider.ErrRetryExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "provider unavailable", "detail": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "request timed out", "detail": err.Error()})
	default:
		var perr *provider.Error
		if errors.As(err, &perr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "provider error", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error", "detail": err.Error()})
	}
}

// intQuery parses an optional integer query parameter. On a malformed
// value it writes a 400 response and returns ok=false.
func intQuery(c *gin.Context, name string, defaultValue int) (int, bool) {
	value := c.Query(name)
	if value == "" {
		return defaultValue, true
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + name + "' parameter"})
		return 0, false
	}
	return parsed, true
}
