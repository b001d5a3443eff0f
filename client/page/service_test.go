package page

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrehbiel/checkin/client"
	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/login"
	"github.com/tkrehbiel/checkin/client/storage"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// socialServer serves a single actor with an inbox and an outbox
type socialServer struct {
	*httptest.Server
	lock   sync.Mutex
	posted []activity.Object
}

func newSocialServer(t *testing.T) *socialServer {
	t.Helper()
	s := &socialServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *socialServer) write(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/activity+json")
	json.NewEncoder(w).Encode(v)
}

func (s *socialServer) serve(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/user/evan":
		s.write(w, map[string]any{
			"id":                s.URL + "/user/evan",
			"type":              "Person",
			"name":              "Evan",
			"preferredUsername": "evan",
			"inbox":             s.URL + "/user/evan/inbox",
			"outbox":            s.URL + "/user/evan/outbox",
			"followers":         s.URL + "/user/evan/followers",
		})
	case "/user/evan/inbox":
		s.write(w, map[string]any{
			"id":   s.URL + "/user/evan/inbox",
			"type": "OrderedCollection",
			"orderedItems": []any{
				map[string]any{
					"id":        s.URL + "/activity/1",
					"type":      "Arrive",
					"published": testNow.Add(-time.Hour).Format(time.RFC3339),
					"actor":     map[string]any{"id": s.URL + "/user/amy", "name": "Amy <3"},
					"location":  map[string]any{"id": s.URL + "/place/1", "name": "Cafe"},
				},
				map[string]any{
					"id":        s.URL + "/activity/2",
					"type":      "Arrive",
					"published": testNow.Add(-2 * time.Hour).Format(time.RFC3339),
					"actor":     s.URL + "/user/bob",
					"location":  s.URL + "/place/1",
				},
			},
		})
	case "/user/bob":
		s.write(w, map[string]any{
			"id":                s.URL + "/user/bob",
			"type":              "Person",
			"name":              "Bob",
			"preferredUsername": "bob",
			"icon":              map[string]any{"type": "Image", "url": s.URL + "/bob.png"},
		})
	case "/place/1":
		s.write(w, map[string]any{"id": s.URL + "/place/1", "type": "Place", "name": "Cafe"})
	case "/user/evan/outbox":
		var obj activity.Object
		json.NewDecoder(r.Body).Decode(&obj)
		obj["id"] = s.URL + "/activity/posted"
		s.lock.Lock()
		s.posted = append(s.posted, obj)
		s.lock.Unlock()
		s.write(w, obj)
	default:
		http.NotFound(w, r)
	}
}

func (s *socialServer) postedActivities() []activity.Object {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]activity.Object(nil), s.posted...)
}

type fakeSearcher struct {
	places []activity.Object
	err    error
	lat    float64
	lon    float64
}

func (f *fakeSearcher) Search(_ context.Context, lat float64, lon float64) ([]activity.Object, error) {
	f.lat, f.lon = lat, lon
	return f.places, f.err
}

func newTestService(t *testing.T, s *socialServer, loggedIn bool, searcher Searcher) *Service {
	t.Helper()
	cfg := client.DefaultConfig()
	cfg.ClientID = "https://app.example/client"
	c := client.New(cfg, storage.NewMemory())
	c.Session.Now = func() time.Time { return testNow }
	if loggedIn {
		ctx := context.Background()
		c.Session.Set(ctx, client.KeyActorID, s.URL+"/user/evan")
		c.Session.Set(ctx, client.KeyAccessToken, "token")
		c.Session.Set(ctx, client.KeyProxyURL, s.URL+"/proxy")
	}
	flow := login.New(c.Session, cfg.RedirectURI, s.Client())
	return NewService("localhost:0", c, flow, searcher)
}

func get(t *testing.T, h http.Handler, target string) (*http.Response, string) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	recorder := httptest.NewRecorder()
	h.ServeHTTP(recorder, r)
	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(t, err)
	return recorder.Result(), string(body)
}

func TestHome_LoggedOut(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, false, &fakeSearcher{})

	resp, body := get(t, svc.Handler(), "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/login"`)
	assert.NotContains(t, body, "inbox-activities")
}

func TestHome_Inbox(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, true, &fakeSearcher{})

	resp, body := get(t, svc.Handler(), "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "inbox-activities")
	assert.Contains(t, body, "Amy &lt;3 arrived at Cafe")
	assert.Contains(t, body, "1 hour ago")

	// bare references are resolved before rendering
	assert.Contains(t, body, "Bob arrived at Cafe")
	assert.Contains(t, body, `<img src="`+s.URL+`/bob.png"`)
	assert.Contains(t, body, "2 hours ago")
	assert.NotContains(t, body, "(someone)")
}

func TestLogin_BadHandle(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, false, &fakeSearcher{})

	resp, body := get(t, svc.Handler(), "/login?handle=nobody")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `class="error"`)
}

func TestCallback_BadState(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, false, &fakeSearcher{})

	resp, _ := get(t, svc.Handler(), "/callback?code=abc&state=wrong")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaces(t *testing.T) {
	s := newSocialServer(t)
	searcher := &fakeSearcher{places: []activity.Object{
		{"id": "https://places.example/1", "type": "Place", "name": "Cafe"},
		{"id": "https://places.example/2", "type": "Place", "name": "Park & Ride"},
	}}
	svc := newTestService(t, s, true, searcher)

	resp, body := get(t, svc.Handler(), "/places?lat=45.5&lon=-73.6")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 45.5, searcher.lat)
	assert.Equal(t, -73.6, searcher.lon)
	assert.Contains(t, body, `value="https://places.example/1"`)
	assert.Contains(t, body, "Park &amp; Ride")
}

func TestPlaces_BadInput(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, true, &fakeSearcher{})

	resp, _ := get(t, svc.Handler(), "/places?lat=north&lon=1")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaces_SearchFails(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, true, &fakeSearcher{err: errors.New("down")})

	resp, body := get(t, svc.Handler(), "/places?lat=1&lon=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Failed to fetch nearby places.")
}

func TestCheckin(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, true, &fakeSearcher{})

	form := url.Values{
		"place":      {s.URL + "/place/1"},
		"content":    {" Coffee time "},
		"visibility": {"followers"},
	}
	r := httptest.NewRequest(http.MethodPost, "/checkin", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	svc.Handler().ServeHTTP(recorder, r)

	assert.Equal(t, http.StatusSeeOther, recorder.Code)
	assert.Equal(t, "/", recorder.Header().Get("Location"))

	posted := s.postedActivities()
	require.Len(t, posted, 1)
	assert.Equal(t, "Arrive", posted[0].Type())
	assert.Equal(t, "Coffee time", posted[0]["content"])
	assert.Equal(t, []any{s.URL + "/user/evan/followers"}, posted[0]["to"])
}

func TestCheckin_MissingPlace(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, true, &fakeSearcher{})

	r := httptest.NewRequest(http.MethodPost, "/checkin", strings.NewReader(""))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	recorder := httptest.NewRecorder()
	svc.Handler().ServeHTTP(recorder, r)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Empty(t, s.postedActivities())
}

func TestLogout(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, true, &fakeSearcher{})

	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	recorder := httptest.NewRecorder()
	svc.Handler().ServeHTTP(recorder, r)
	assert.Equal(t, http.StatusFound, recorder.Code)
	assert.False(t, svc.client.Session.LoggedIn(context.Background()))
}

func TestMetrics(t *testing.T) {
	s := newSocialServer(t)
	svc := newTestService(t, s, false, &fakeSearcher{})

	get(t, svc.Handler(), "/")
	resp, body := get(t, svc.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `checkin_events_total{name="page_requests"}`)
}
