// Package page is a small local web front end for the check-in client
package page

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/tkrehbiel/checkin/client"
	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/login"
	"github.com/tkrehbiel/checkin/client/places"
	"github.com/tkrehbiel/checkin/client/summary"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// Searcher finds places near a point
type Searcher interface {
	Search(ctx context.Context, lat float64, lon float64) ([]activity.Object, error)
}

var _ Searcher = (*places.Searcher)(nil)

type Service struct {
	Server http.Server
	router *mux.Router
	client *client.Client
	login  *login.Flow
	places Searcher
}

// NewService creates the web front end, listening on addr
func NewService(addr string, c *client.Client, flow *login.Flow, searcher Searcher) *Service {
	s := &Service{
		router: mux.NewRouter(),
		client: c,
		login:  flow,
		places: searcher,
	}
	s.addHandlers()
	s.Server = http.Server{
		Handler:      s.router,
		Addr:         addr,
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
	}
	return s
}

func (s *Service) addHandlers() {
	s.router.HandleFunc("/", s.home).Methods(http.MethodGet)
	s.router.HandleFunc("/login", s.startLogin).Methods(http.MethodGet)
	s.router.HandleFunc("/callback", s.callback).Methods(http.MethodGet)
	s.router.HandleFunc("/logout", s.logout).Methods(http.MethodPost)
	s.router.HandleFunc("/places", s.nearby).Methods(http.MethodGet)
	s.router.HandleFunc("/checkin", s.checkin).Methods(http.MethodPost)
	s.router.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	s.router.Use(requestLogger)
}

// Handler is the router, for tests and embedding
func (s *Service) Handler() http.Handler {
	return s.router
}

func (s *Service) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Server.Shutdown(shutdown)
	}()
	telemetry.Log("http listener starting on %s", s.Server.Addr)
	err := s.Server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.Request(r, "page request")
		telemetry.Increment("page_requests", 1)
		next.ServeHTTP(w, r)
	})
}

type activityView struct {
	ActorName string
	ActorIcon string
	Summary   template.HTML
	When      string
}

// actorView is the name and icon shown beside an activity
func actorView(act activity.Object) (name string, icon string) {
	obj, ok := activity.AsObject(act[activity.ActorProperty])
	if !ok {
		return summary.Someone, ""
	}
	name = summary.Someone
	if a, err := activity.DecodeActor(obj); err == nil && (a.Name != "" || a.PreferredUsername != "") {
		name = a.DisplayName()
	}
	return name, summary.Icon(obj)
}

type pageData struct {
	Error      string
	Activities []activityView
	Places     []placeView
}

type placeView struct {
	ID   string
	Name string
}

func render(w http.ResponseWriter, t *template.Template, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.Execute(w, data); err != nil {
		telemetry.Error(err, "rendering %s", t.Name())
	}
}

func (s *Service) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.client.Session.LoggedIn(ctx) {
		render(w, loginTemplate, pageData{Error: r.URL.Query().Get("error")})
		return
	}
	data := pageData{Error: r.URL.Query().Get("error")}
	list, err := s.client.Inbox.Refresh(ctx)
	if err != nil {
		telemetry.Error(err, "refreshing inbox")
		data.Error = "Could not load new activities."
		list = s.client.Inbox.Cached(ctx)
	}
	now := time.Now
	if s.client.Session.Now != nil {
		now = s.client.Session.Now
	}
	for _, act := range s.client.Hydrate(ctx, list) {
		name, icon := actorView(act)
		view := activityView{
			ActorName: name,
			ActorIcon: icon,
			// summaries are escaped or sanitized
			Summary: template.HTML(summary.Display(act)),
		}
		if ts := act.Timestamp(); !ts.IsZero() {
			view.When = humanize.RelTime(ts, now(), "ago", "from now")
		}
		data.Activities = append(data.Activities, view)
	}
	render(w, inboxTemplate, data)
}

func (s *Service) startLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := s.login.Start(r.Context(), r.URL.Query().Get("handle"))
	if err != nil {
		telemetry.Error(err, "starting login")
		render(w, loginTemplate, pageData{Error: err.Error()})
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Service) callback(w http.ResponseWriter, r *http.Request) {
	if err := s.login.Finish(r.Context(), r.URL.String()); err != nil {
		telemetry.Error(err, "finishing login")
		w.WriteHeader(http.StatusBadRequest)
		render(w, loginTemplate, pageData{Error: err.Error()})
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Service) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.client.Session.Logout(r.Context()); err != nil {
		telemetry.Error(err, "logging out")
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Service) nearby(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get("lat")), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get("lon")), 64)
	if latErr != nil || lonErr != nil {
		w.WriteHeader(http.StatusBadRequest)
		render(w, placesTemplate, pageData{Error: "Latitude and longitude must be numbers."})
		return
	}
	found, err := s.places.Search(r.Context(), lat, lon)
	if err != nil {
		telemetry.Error(err, "searching places")
		render(w, placesTemplate, pageData{Error: "Failed to fetch nearby places."})
		return
	}
	var data pageData
	for _, p := range found {
		data.Places = append(data.Places, placeView{ID: p.ID(), Name: p.String(activity.NameProperty)})
	}
	render(w, placesTemplate, data)
}

func (s *Service) checkin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	place := r.PostForm.Get("place")
	if place == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, err := s.client.Outbox.Checkin(r.Context(), client.CheckinRequest{
		Place:      place,
		Content:    strings.TrimSpace(r.PostForm.Get("content")),
		Visibility: client.Visibility(r.PostForm.Get("visibility")),
	})
	if err != nil {
		telemetry.Error(err, "checking in at [%s]", place)
		http.Redirect(w, r, "/?error="+url.QueryEscape(fmt.Sprintf("Check-in failed: %s", err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
