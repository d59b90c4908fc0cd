package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RawFollower is the minimal follower record returned by the listing call.
type RawFollower struct {
	ID       string `json:"pk"`
	Username string `json:"username"`
}

// FollowerPage is one normalized page of follower records.
// NextCursor is the opaque continuation token; empty means end of pagination.
type FollowerPage struct {
	Followers  []RawFollower
	NextCursor string
}

// UserDetail is the normalized result of a per-user lookup.
type UserDetail struct {
	ID             string `json:"pk"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	FollowersCount int    `json:"followers_count"`
	IsPrivate      bool   `json:"is_private"`
}

// flexString tolerates string, number, and null JSON values.
// Provider identifiers and cursors show up in all three forms.
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}

// rawUser captures the identifier variants the provider emits for a follower.
type rawUser struct {
	PK       flexString `json:"pk"`
	ID       flexString `json:"id"`
	Username string     `json:"username"`
}

func (u rawUser) identifier() string {
	if u.PK != "" {
		return string(u.PK)
	}
	return string(u.ID)
}

// followerPageObject is the object shape of the followers-chunk response.
type followerPageObject struct {
	Users   []rawUser `json:"users"`
	Items   []rawUser `json:"items"`
	Results []rawUser `json:"results"`

	NextMaxID  flexString `json:"next_max_id"`
	NextCursor flexString `json:"next_cursor"`
	PageID     flexString `json:"page_id"`
	EndCursor  flexString `json:"end_cursor"`
}

// normalizeFollowerPage coerces both response shapes of the followers-chunk
// endpoint into a FollowerPage:
//
//	A) list:   [ users[], next_max_id_or_null ]
//	B) object: { users: [...], next_max_id: "..." }
//
// Followers without any identifier are dropped.
func normalizeFollowerPage(data []byte) (*FollowerPage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty followers page payload")
	}

	var users []rawUser
	var cursor string

	if trimmed[0] == '[' {
		// A) list shape
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return nil, fmt.Errorf("parse followers page (list shape): %w", err)
		}
		if len(parts) > 0 {
			if err := json.Unmarshal(parts[0], &users); err != nil {
				return nil, fmt.Errorf("parse followers page users: %w", err)
			}
		}
		if len(parts) > 1 {
			var c flexString
			if err := json.Unmarshal(parts[1], &c); err != nil {
				return nil, fmt.Errorf("parse followers page cursor: %w", err)
			}
			cursor = string(c)
		}
	} else {
		// B) object shape
		var page followerPageObject
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("parse followers page (object shape): %w", err)
		}

		switch {
		case len(page.Users) > 0:
			users = page.Users
		case len(page.Items) > 0:
			users = page.Items
		default:
			users = page.Results
		}

		for _, c := range []flexString{page.NextMaxID, page.NextCursor, page.PageID, page.EndCursor} {
			if c != "" {
				cursor = string(c)
				break
			}
		}
	}

	followers := make([]RawFollower, 0, len(users))
	for _, u := range users {
		id := u.identifier()
		if id == "" {
			continue
		}
		followers = append(followers, RawFollower{ID: id, Username: u.Username})
	}

	return &FollowerPage{Followers: followers, NextCursor: cursor}, nil
}

// userDetailPayload captures the field variants of the per-user lookup response.
type userDetailPayload struct {
	PK       flexString `json:"pk"`
	ID       flexString `json:"id"`
	Username string     `json:"username"`
	FullName string     `json:"full_name"`

	FollowersCount *int64 `json:"followers_count"`
	FollowerCount  *int64 `json:"follower_count"`
	EdgeFollowedBy struct {
		Count int64 `json:"count"`
	} `json:"edge_followed_by"`

	IsPrivate bool `json:"is_private"`
}

// normalizeUserDetail coerces a lookup response into a UserDetail.
// The fallback identifier and username cover providers that omit
// those fields from the detail payload.
func normalizeUserDetail(data []byte, fallbackID, fallbackUsername string) (*UserDetail, error) {
	var payload userDetailPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse user detail: %w", err)
	}

	var count int64
	switch {
	case payload.FollowersCount != nil:
		count = *payload.FollowersCount
	case payload.FollowerCount != nil:
		count = *payload.FollowerCount
	default:
		count = payload.EdgeFollowedBy.Count
	}
	if count < 0 {
		count = 0
	}

	id := string(payload.PK)
	if id == "" {
		id = string(payload.ID)
	}
	if id == "" {
		id = fallbackID
	}

	username := payload.Username
	if username == "" {
		username = fallbackUsername
	}

	return &UserDetail{
		ID:             id,
		Username:       username,
		FullName:       payload.FullName,
		FollowersCount: int(count),
		IsPrivate:      payload.IsPrivate,
	}, nil
}
