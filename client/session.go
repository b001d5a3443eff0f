// Package client is an ActivityPub client for geosocial check-ins:
// authenticated fetching, reference resolution, collection paging,
// inbox aggregation and outbox posting.
package client

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tkrehbiel/checkin/client/storage"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// Store keys
const (
	KeyActor                 = "actor"
	KeyActorID               = "actor_id"
	KeyAccessToken           = "access_token"
	KeyRefreshToken          = "refresh_token"
	KeyExpiresIn             = "expires_in"
	KeyExpires               = "expires" // epoch milliseconds
	KeyOutbox                = "outbox"
	KeyInbox                 = "inbox"
	KeyInboxActivities       = "inbox-activities"
	KeyProxyURL              = "proxy_url"
	KeyTokenEndpoint         = "token_endpoint"
	KeyAuthorizationEndpoint = "authorization_endpoint"
	KeyState                 = "state"
	KeyCodeVerifier          = "code_verifier"

	cachePrefix = "cache:"
)

// CacheKey is the store key for a cached object
func CacheKey(id string) string {
	return cachePrefix + id
}

// Token is an OAuth token endpoint response
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session holds everything a client run shares: the store, the
// OAuth client id and the clock. Components are built from it.
type Session struct {
	Store    storage.Store
	ClientID string
	Now      func() time.Time
}

func NewSession(store storage.Store, clientID string) *Session {
	return &Session{
		Store:    store,
		ClientID: clientID,
		Now:      time.Now,
	}
}

func (s *Session) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Get reads a key, treating missing keys and storage failures as empty
func (s *Session) Get(ctx context.Context, key string) string {
	v, err := s.Store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return ""
	} else if err != nil {
		telemetry.Error(err, "reading key [%s]", key)
		return ""
	}
	return v
}

// Set writes a key, logging storage failures
func (s *Session) Set(ctx context.Context, key string, value string) {
	if err := s.Store.Set(ctx, key, value); err != nil {
		telemetry.Error(err, "writing key [%s]", key)
	}
}

func (s *Session) Remove(ctx context.Context, key string) {
	if err := s.Store.Remove(ctx, key); err != nil {
		telemetry.Error(err, "removing key [%s]", key)
	}
}

func (s *Session) ActorID(ctx context.Context) string {
	return s.Get(ctx, KeyActorID)
}

func (s *Session) AccessToken(ctx context.Context) string {
	return s.Get(ctx, KeyAccessToken)
}

func (s *Session) RefreshToken(ctx context.Context) string {
	return s.Get(ctx, KeyRefreshToken)
}

func (s *Session) TokenEndpoint(ctx context.Context) string {
	return s.Get(ctx, KeyTokenEndpoint)
}

func (s *Session) ProxyURL(ctx context.Context) string {
	return s.Get(ctx, KeyProxyURL)
}

// Expires is when the access token expires.
// False if no expiry is stored or it can't be parsed.
func (s *Session) Expires(ctx context.Context) (time.Time, bool) {
	v := s.Get(ctx, KeyExpires)
	if v == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		telemetry.Trace("unparsable token expiry [%s]", v)
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// SaveToken stores whatever a token response carries.
// The expiry is computed from the current time.
func (s *Session) SaveToken(ctx context.Context, t Token) {
	if t.AccessToken != "" {
		s.Set(ctx, KeyAccessToken, t.AccessToken)
	}
	if t.RefreshToken != "" {
		s.Set(ctx, KeyRefreshToken, t.RefreshToken)
	}
	if t.ExpiresIn > 0 {
		s.Set(ctx, KeyExpiresIn, strconv.FormatInt(t.ExpiresIn, 10))
		expires := s.now().UnixMilli() + t.ExpiresIn*1000
		s.Set(ctx, KeyExpires, strconv.FormatInt(expires, 10))
	}
}

// LoggedIn reports whether there are credentials to use
func (s *Session) LoggedIn(ctx context.Context) bool {
	return s.ActorID(ctx) != "" && s.AccessToken(ctx) != ""
}

// Logout forgets everything, cached objects included
func (s *Session) Logout(ctx context.Context) error {
	return s.Store.Clear(ctx)
}
