package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/summary"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// Visibility decides who an activity is addressed to
type Visibility string

const (
	Public    Visibility = "public"    // to the public
	Unlisted  Visibility = "unlisted"  // to followers, cc the public
	Followers Visibility = "followers" // to followers only
)

// placeFields lets an embedded place skip a fetch
var placeFields = []string{activity.IDProperty, activity.NameProperty}

type CheckinRequest struct {
	Place      any // place id or object
	Content    string
	Visibility Visibility
}

type TravelRequest struct {
	Origin     any
	Target     any
	Content    string
	Visibility Visibility
}

// Outbox posts activities as the logged-in actor
type Outbox struct {
	session  *Session
	fetcher  *Fetcher
	resolver *Resolver
	actors   *Actors
}

func NewOutbox(session *Session, fetcher *Fetcher, resolver *Resolver, actors *Actors) *Outbox {
	return &Outbox{session: session, fetcher: fetcher, resolver: resolver, actors: actors}
}

// Post sends an activity to the actor's outbox and returns what the
// server made of it
func (o *Outbox) Post(ctx context.Context, act activity.Object) (activity.Object, error) {
	outbox, err := o.actors.Outbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding outbox: %w", err)
	}
	body := activity.Object{"@context": activity.Context}
	for k, v := range act {
		if k != "@context" {
			body[k] = v
		}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding activity: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, outbox, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("creating outbox request: %w", err)
	}
	r.Header.Set("Content-Type", activity.ContentType)
	r.Header.Set("Accept", activity.Accept)

	resp, err := o.fetcher.Do(r)
	if err != nil {
		return nil, fmt.Errorf("posting to outbox %s: %w", outbox, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d posting to outbox %s", ErrStatus, resp.StatusCode, outbox)
	}
	rb, err := o.fetcher.readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("reading outbox response: %w", err)
	}
	telemetry.Increment("activities_posted", 1)
	if len(bytes.TrimSpace(rb)) == 0 {
		if loc := resp.Header.Get("Location"); loc != "" {
			body[activity.IDProperty] = loc
		}
		return body, nil
	}
	posted, err := activity.NewObject(rb)
	if err != nil {
		return nil, fmt.Errorf("parsing outbox response: %w", err)
	}
	telemetry.Log("posted %s %s", posted.Type(), posted.ID())
	return posted, nil
}

// Checkin posts an Arrive at a place
func (o *Outbox) Checkin(ctx context.Context, req CheckinRequest) (activity.Object, error) {
	place, err := o.place(ctx, req.Place)
	if err != nil {
		return nil, err
	}
	return o.send(ctx, activity.ArriveType, req.Content, req.Visibility, func(act *activity.Activity) {
		act.Location = place
	})
}

// Leave posts a Leave from a place
func (o *Outbox) Leave(ctx context.Context, req CheckinRequest) (activity.Object, error) {
	place, err := o.place(ctx, req.Place)
	if err != nil {
		return nil, err
	}
	return o.send(ctx, activity.LeaveType, req.Content, req.Visibility, func(act *activity.Activity) {
		act.Object = place
	})
}

// Travel posts a Travel between two places
func (o *Outbox) Travel(ctx context.Context, req TravelRequest) (activity.Object, error) {
	origin, err := o.place(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	target, err := o.place(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return o.send(ctx, activity.TravelType, req.Content, req.Visibility, func(act *activity.Activity) {
		act.Origin = origin
		act.Target = target
	})
}

func (o *Outbox) place(ctx context.Context, ref any) (activity.Ref, error) {
	obj, err := o.resolver.Resolve(ctx, ref, ResolveOptions{Required: placeFields})
	if err != nil {
		return activity.Ref{}, fmt.Errorf("resolving place: %w", err)
	}
	return refFor(obj), nil
}

func (o *Outbox) send(ctx context.Context, typ string, content string, vis Visibility, fill func(*activity.Activity)) (activity.Object, error) {
	actor, err := o.actors.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading actor: %w", err)
	}
	to, cc, err := Addressing(vis, actor.Followers)
	if err != nil {
		return nil, err
	}
	act := activity.Activity{
		Type: typ,
		Actor: activity.Ref{
			ID:   actor.ID,
			Name: actorName(actor),
			URL:  summary.URL(activity.Object{activity.URLProperty: actor.URL}, activity.URLProperty, summary.HTMLTypes),
		},
		To: to,
		CC: cc,
	}
	fill(&act)
	if content != "" {
		act.Content = content
		act.ContentMap = map[string]string{"en": content}
	}
	act.SummaryMap = map[string]string{"en": summary.Make(act.Wire())}
	return o.Post(ctx, act.Wire())
}

// Addressing works out to and cc for a visibility
func Addressing(vis Visibility, followers string) (to []string, cc []string, err error) {
	switch vis {
	case Public, "":
		return []string{activity.PublicAddress}, nil, nil
	case Unlisted, Followers:
		if followers == "" {
			return nil, nil, fmt.Errorf("actor has no followers collection for %s visibility", vis)
		}
		if vis == Unlisted {
			return []string{followers}, []string{activity.PublicAddress}, nil
		}
		return []string{followers}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown visibility %q", vis)
}

func refFor(obj activity.Object) activity.Ref {
	return activity.Ref{
		ID:   obj.ID(),
		Name: obj.String(activity.NameProperty),
		URL:  summary.URL(obj, activity.URLProperty, summary.HTMLTypes),
	}
}

func actorName(a activity.Actor) string {
	if a.Name != "" {
		return a.Name
	}
	return a.PreferredUsername
}

