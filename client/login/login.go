// Package login signs the client in to an actor's home server with
// OAuth 2.0 authorization code and PKCE, discovering the endpoints
// through webfinger and the actor document.
package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tkrehbiel/checkin/client"
	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
	"golang.org/x/oauth2"
)

var (
	ErrBadHandle       = errors.New("bad webfinger handle")
	ErrNoActor         = errors.New("no ActivityPub actor in webfinger")
	ErrMissingEndpoint = errors.New("actor is missing an endpoint")
	ErrState           = errors.New("authorization state does not match")
)

// Scopes requested from the authorization server
var Scopes = []string{"read", "write"}

var handleRegex = regexp.MustCompile(`^(?:acct:)?([^@]+)@((?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?)(?:\.(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?))*)$`)

// ParseHandle splits a user@domain handle, with or without acct:
func ParseHandle(handle string) (user string, domain string, err error) {
	m := handleRegex.FindStringSubmatch(strings.TrimSpace(handle))
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrBadHandle, handle)
	}
	return m[1], m[2], nil
}

// Flow runs a login for one session
type Flow struct {
	session     *client.Session
	redirectURI string
	http        *http.Client

	// base url for webfinger lookups on a domain
	webfingerBase func(domain string) string
}

func New(session *client.Session, redirectURI string, httpClient *http.Client) *Flow {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Flow{
		session:     session,
		redirectURI: redirectURI,
		http:        httpClient,
		webfingerBase: func(domain string) string {
			return "https://" + domain
		},
	}
}

type jrd struct {
	Subject string `json:"subject"`
	Links   []struct {
		Rel  string `json:"rel"`
		Type string `json:"type"`
		HRef string `json:"href"`
	} `json:"links"`
}

// ActorID finds the actor id for a handle with webfinger
func (f *Flow) ActorID(ctx context.Context, handle string) (string, error) {
	user, domain, err := ParseHandle(handle)
	if err != nil {
		return "", err
	}
	wf := fmt.Sprintf("%s/.well-known/webfinger?resource=acct:%s%%40%s", f.webfingerBase(domain), url.PathEscape(user), domain)
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, wf, nil)
	if err != nil {
		return "", err
	}
	r.Header.Set("Accept", "application/jrd+json, application/json")
	var doc jrd
	if err := f.getJSON(r, &doc); err != nil {
		return "", fmt.Errorf("webfinger for %s: %w", handle, err)
	}
	for _, link := range doc.Links {
		if link.Rel == "self" && isActivityType(link.Type) && link.HRef != "" {
			return link.HRef, nil
		}
	}
	return "", fmt.Errorf("%w for %s", ErrNoActor, handle)
}

func isActivityType(mediaType string) bool {
	return mediaType == activity.ContentType ||
		mediaType == activity.ContentTypeLD ||
		mediaType == "application/ld+json"
}

func (f *Flow) getJSON(r *http.Request, v any) error {
	resp, err := f.http.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d from %s", client.ErrStatus, resp.StatusCode, r.URL)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(v)
}

// Start looks up the actor behind a handle, remembers its endpoints and
// returns the url where the user authorizes the client
func (f *Flow) Start(ctx context.Context, handle string) (string, error) {
	actorID, err := f.ActorID(ctx, handle)
	if err != nil {
		return "", err
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, actorID, nil)
	if err != nil {
		return "", err
	}
	r.Header.Set("Accept", activity.Accept)
	var obj activity.Object
	if err := f.getJSON(r, &obj); err != nil {
		return "", fmt.Errorf("fetching actor %s: %w", actorID, err)
	}
	actor, err := activity.DecodeActor(obj)
	if err != nil {
		return "", err
	}
	ep := actor.Endpoints
	switch {
	case ep.OAuthTokenEndpoint == "":
		return "", fmt.Errorf("%w: no OAuth token endpoint", ErrMissingEndpoint)
	case ep.ProxyURL == "":
		return "", fmt.Errorf("%w: no proxy endpoint", ErrMissingEndpoint)
	case ep.OAuthAuthorizationEndpoint == "":
		return "", fmt.Errorf("%w: no OAuth authorization endpoint", ErrMissingEndpoint)
	}

	// a new login starts from scratch
	if err := f.session.Logout(ctx); err != nil {
		telemetry.Error(err, "clearing previous session")
	}
	f.session.Set(ctx, client.KeyActorID, actorID)
	f.session.Set(ctx, client.KeyTokenEndpoint, ep.OAuthTokenEndpoint)
	f.session.Set(ctx, client.KeyProxyURL, ep.ProxyURL)
	f.session.Set(ctx, client.KeyAuthorizationEndpoint, ep.OAuthAuthorizationEndpoint)

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	f.session.Set(ctx, client.KeyCodeVerifier, verifier)
	f.session.Set(ctx, client.KeyState, state)

	telemetry.Log("logging in as %s", actorID)
	return f.config(ep.OAuthAuthorizationEndpoint, ep.OAuthTokenEndpoint).
		AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Finish completes a login from the url the authorization server
// redirected back to
func (f *Flow) Finish(ctx context.Context, callbackURL string) error {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return fmt.Errorf("parsing callback url: %w", err)
	}
	q := u.Query()
	if e := q.Get("error"); e != "" {
		return fmt.Errorf("authorization failed: %s %s", e, q.Get("error_description"))
	}
	state := f.session.Get(ctx, client.KeyState)
	if state == "" || q.Get("state") != state {
		return ErrState
	}
	code := q.Get("code")
	if code == "" {
		return errors.New("no authorization code in callback")
	}
	conf := f.config(
		f.session.Get(ctx, client.KeyAuthorizationEndpoint),
		f.session.Get(ctx, client.KeyTokenEndpoint),
	)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.http)
	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(f.session.Get(ctx, client.KeyCodeVerifier)))
	if err != nil {
		return fmt.Errorf("exchanging authorization code: %w", err)
	}
	f.session.SaveToken(ctx, client.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	})
	f.session.Remove(ctx, client.KeyState)
	f.session.Remove(ctx, client.KeyCodeVerifier)
	telemetry.Log("logged in as %s", f.session.ActorID(ctx))
	return nil
}

// expiresIn recovers the token lifetime in seconds from the raw response
func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	if !tok.Expiry.IsZero() {
		return int64(time.Until(tok.Expiry).Seconds())
	}
	return 0
}

func (f *Flow) config(authURL string, tokenURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    f.session.ClientID,
		RedirectURL: f.redirectURI,
		Scopes:      Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
