package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tkrehbiel/checkin/client/storage"
)

const testToken = "test-access-token"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeServer simulates a social server holding JSON objects by path.
// "{{base}}" in a document is replaced with the server url.
type fakeServer struct {
	*httptest.Server
	t        *testing.T
	lock     sync.Mutex
	objects  map[string]string
	handlers map[string]http.HandlerFunc
	hits     map[string]int
	auth     []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		t:        t,
		objects:  make(map[string]string),
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	s.hits[r.URL.Path]++
	s.auth = append(s.auth, r.Header.Get("Authorization"))
	h, hasHandler := s.handlers[r.URL.Path]
	doc, hasDoc := s.objects[r.URL.Path]
	s.lock.Unlock()

	if hasHandler {
		h(w, r)
		return
	}
	if !hasDoc {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/activity+json")
	w.Write([]byte(doc))
}

func (s *fakeServer) url(path string) string {
	return s.URL + path
}

func (s *fakeServer) add(path string, doc string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.objects[path] = strings.ReplaceAll(doc, "{{base}}", s.URL)
}

func (s *fakeServer) handle(path string, h http.HandlerFunc) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handlers[path] = h
}

func (s *fakeServer) hitCount(path string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.hits[path]
}

func (s *fakeServer) authHeaders() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.auth...)
}

const testActor = `{
	"@context": "https://www.w3.org/ns/activitystreams",
	"id": "{{base}}/user/evan",
	"type": "Person",
	"name": "Evan",
	"preferredUsername": "evan",
	"url": "{{base}}/@evan",
	"inbox": "{{base}}/user/evan/inbox",
	"outbox": "{{base}}/user/evan/outbox",
	"followers": "{{base}}/user/evan/followers",
	"endpoints": {
		"oauthAuthorizationEndpoint": "{{base}}/oauth/authorize",
		"oauthTokenEndpoint": "{{base}}/oauth/token",
		"proxyUrl": "{{base}}/proxy"
	}
}`

// newTestClient returns a logged-in client for the fake server,
// backed by an in-memory store and a fixed clock
func newTestClient(t *testing.T, s *fakeServer) *Client {
	t.Helper()
	s.add("/user/evan", testActor)

	cfg := DefaultConfig()
	cfg.ClientID = "https://app.example/client"
	cfg.Fetch.Timeout = Duration{5 * time.Second}
	c := New(cfg, storage.NewMemory())
	c.Session.Now = func() time.Time { return testNow }

	ctx := context.Background()
	c.Session.Set(ctx, KeyActorID, s.url("/user/evan"))
	c.Session.Set(ctx, KeyAccessToken, testToken)
	c.Session.Set(ctx, KeyRefreshToken, "test-refresh-token")
	c.Session.Set(ctx, KeyTokenEndpoint, s.url("/oauth/token"))
	c.Session.Set(ctx, KeyProxyURL, s.url("/proxy"))
	return c
}

// mockStore is a Store whose behavior each test scripts
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(key)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Set(ctx context.Context, key string, value string) error {
	args := m.Called(key, value)
	return args.Error(0)
}

func (m *mockStore) Remove(ctx context.Context, key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *mockStore) Clear(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockStore) Close() error {
	return nil
}
