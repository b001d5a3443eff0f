package client

import (
	"context"
	"fmt"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// Actors loads the logged-in actor, keeping a copy in the store
type Actors struct {
	session *Session
	fetcher *Fetcher
}

func NewActors(session *Session, fetcher *Fetcher) *Actors {
	return &Actors{session: session, fetcher: fetcher}
}

// Object returns the actor document as stored or fetched
func (a *Actors) Object(ctx context.Context) (activity.Object, error) {
	if v := a.session.Get(ctx, KeyActor); v != "" {
		obj, err := activity.NewObject([]byte(v))
		if err == nil {
			return obj, nil
		}
		telemetry.Error(err, "discarding stored actor")
		a.session.Remove(ctx, KeyActor)
	}
	id := a.session.ActorID(ctx)
	if id == "" {
		return nil, ErrNotLoggedIn
	}
	obj, err := a.fetcher.GetObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching actor: %w", err)
	}
	a.session.Set(ctx, KeyActor, string(obj.JSON()))
	return obj, nil
}

// Get returns the typed actor
func (a *Actors) Get(ctx context.Context) (activity.Actor, error) {
	obj, err := a.Object(ctx)
	if err != nil {
		return activity.Actor{}, err
	}
	return activity.DecodeActor(obj)
}

// endpoint returns a stored collection url, else looks it up on the actor
// and stores it
func (a *Actors) endpoint(ctx context.Context, key string, pick func(activity.Actor) string) (string, error) {
	if v := a.session.Get(ctx, key); v != "" {
		return v, nil
	}
	actor, err := a.Get(ctx)
	if err != nil {
		return "", err
	}
	v := pick(actor)
	if v == "" {
		return "", fmt.Errorf("actor %s has no %s", actor.ID, key)
	}
	a.session.Set(ctx, key, v)
	return v, nil
}

func (a *Actors) Inbox(ctx context.Context) (string, error) {
	return a.endpoint(ctx, KeyInbox, func(actor activity.Actor) string { return actor.Inbox })
}

func (a *Actors) Outbox(ctx context.Context) (string, error) {
	return a.endpoint(ctx, KeyOutbox, func(actor activity.Actor) string { return actor.Outbox })
}
