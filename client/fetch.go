package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

var (
	ErrNotLoggedIn = errors.New("not logged in")
	ErrNoProxy     = errors.New("no proxy url for cross-origin request")
	ErrStatus      = errors.New("unexpected http status")
	ErrTooLarge    = errors.New("response too large")
)

// Fetcher sends requests on behalf of the logged-in actor.
// Requests to the actor's own server carry the bearer token directly,
// everything else goes through the server's signed-fetch proxy.
type Fetcher struct {
	session  *Session
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
	refresh  singleflight.Group
}

func NewFetcher(session *Session, cfg FetchConfig) *Fetcher {
	f := &Fetcher{
		session:  session,
		client:   &http.Client{Timeout: cfg.Timeout.Duration},
		maxBytes: cfg.MaxResponseBytes,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// EnsureFreshToken refreshes the access token if it has expired.
// Concurrent callers share a single refresh.
func (f *Fetcher) EnsureFreshToken(ctx context.Context) error {
	if !f.expired(ctx) {
		return nil
	}
	_, err, _ := f.refresh.Do("refresh", func() (any, error) {
		// someone else may have just refreshed
		if !f.expired(ctx) {
			return nil, nil
		}
		return nil, f.refreshToken(ctx)
	})
	return err
}

func (f *Fetcher) expired(ctx context.Context) bool {
	expires, ok := f.session.Expires(ctx)
	return ok && f.session.now().After(expires)
}

func (f *Fetcher) refreshToken(ctx context.Context) error {
	endpoint := f.session.TokenEndpoint(ctx)
	if endpoint == "" {
		return fmt.Errorf("no token endpoint: %w", ErrNotLoggedIn)
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {f.session.RefreshToken(ctx)},
		"client_id":     {f.session.ClientID},
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("Accept", "application/json")

	telemetry.Increment("token_refreshes", 1)
	resp, err := f.client.Do(r)
	if err != nil {
		telemetry.Increment("token_refresh_failures", 1)
		return fmt.Errorf("posting to token endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		telemetry.Increment("token_refresh_failures", 1)
		return fmt.Errorf("%w %d from token endpoint %s", ErrStatus, resp.StatusCode, endpoint)
	}
	var token Token
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&token); err != nil {
		telemetry.Increment("token_refresh_failures", 1)
		return fmt.Errorf("decoding token response: %w", err)
	}
	f.session.SaveToken(ctx, token)
	telemetry.Log("refreshed access token, expires in %ds", token.ExpiresIn)
	return nil
}

// Do sends a request as the logged-in actor.
// A failed token refresh is logged and the request goes out anyway.
func (f *Fetcher) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := f.EnsureFreshToken(ctx); err != nil {
		telemetry.Error(err, "refreshing access token")
	}
	actorID := f.session.ActorID(ctx)
	if actorID == "" {
		return nil, ErrNotLoggedIn
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	token := f.session.AccessToken(ctx)

	if sameOrigin(req.URL, actorID) {
		req.Header.Set("Authorization", "Bearer "+token)
		telemetry.Trace("fetching %s %s", req.Method, req.URL)
		telemetry.Increment("fetches", 1)
		return f.client.Do(req)
	}

	proxyURL := f.session.ProxyURL(ctx)
	if proxyURL == "" {
		return nil, ErrNoProxy
	}
	form := url.Values{"id": {req.URL.String()}}
	proxied, err := http.NewRequestWithContext(ctx, http.MethodPost, proxyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	proxied.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	proxied.Header.Set("Authorization", "Bearer "+token)
	if accept := req.Header.Get("Accept"); accept != "" {
		proxied.Header.Set("Accept", accept)
	}
	telemetry.Trace("fetching %s through proxy %s", req.URL, proxyURL)
	telemetry.Increment("proxy_fetches", 1)
	return f.client.Do(proxied)
}

// GetObject fetches a JSON object by id
func (f *Fetcher) GetObject(ctx context.Context, id string) (activity.Object, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", id, err)
	}
	r.Header.Set("Accept", activity.Accept)
	resp, err := f.Do(r)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d fetching %s", ErrStatus, resp.StatusCode, id)
	}
	b, err := f.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", id, err)
	}
	obj, err := activity.NewObject(b)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", id, err)
	}
	return obj, nil
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return b, nil
}

// sameOrigin compares scheme and host of a target with an actor id
func sameOrigin(target *url.URL, actorID string) bool {
	actor, err := url.Parse(actorID)
	if err != nil {
		return false
	}
	return strings.EqualFold(target.Scheme, actor.Scheme) && strings.EqualFold(target.Host, actor.Host)
}

