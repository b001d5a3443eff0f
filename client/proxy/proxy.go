// Package proxy is a signed-fetch proxy endpoint: a logged-in client
// posts the id of a remote object and the proxy fetches it with an
// HTTP signature on the actor's behalf.
package proxy

import (
	"context"
	"crypto"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// TokenChecker decides whether a bearer token may use the proxy
type TokenChecker interface {
	CheckToken(ctx context.Context, token string) bool
}

// StaticTokens allows a fixed set of tokens
type StaticTokens []string

func (s StaticTokens) CheckToken(_ context.Context, token string) bool {
	for _, t := range s {
		if t != "" && t == token {
			return true
		}
	}
	return false
}

type Proxy struct {
	keyID    string
	key      crypto.PrivateKey
	tokens   TokenChecker
	client   *http.Client
	maxBytes int64
}

func New(keyID string, key crypto.PrivateKey, tokens TokenChecker, httpClient *http.Client) *Proxy {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Proxy{
		keyID:    keyID,
		key:      key,
		tokens:   tokens,
		client:   httpClient,
		maxBytes: 1 << 20,
	}
}

// Router serves the proxy at a path
func (p *Proxy) Router(path string) *mux.Router {
	r := mux.NewRouter()
	r.Handle(path, p).Methods(http.MethodPost)
	r.Use(requestLogger)
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.Request(r, "proxy request")
		next.ServeHTTP(w, r)
	})
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || !p.tokens.CheckToken(r.Context(), token) {
		telemetry.Increment("proxy_rejected", 1)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := r.PostForm.Get("id")
	target, err := url.Parse(id)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		telemetry.Log("WARNING: proxy request for bad id [%s]", id)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		accept = activity.Accept
	}
	out.Header.Set("Accept", accept)
	if err := sign(p.key, p.keyID, out); err != nil {
		telemetry.Error(err, "signing proxy request for [%s]", id)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	telemetry.Increment("proxy_requests", 1)
	resp, err := p.client.Do(out)
	if err != nil {
		telemetry.Error(err, "proxy fetch of [%s]", id)
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, io.LimitReader(resp.Body, p.maxBytes))
}
