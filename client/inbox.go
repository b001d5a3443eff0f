package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// Inbox keeps a short list of recent geosocial activities from the
// actor's inbox, newest first.
type Inbox struct {
	session     *Session
	resolver    *Resolver
	actors      *Actors
	concurrency int
	limit       int
	maxAge      time.Duration
}

func NewInbox(session *Session, resolver *Resolver, actors *Actors, cfg InboxConfig, concurrency int) *Inbox {
	limit := cfg.MaxActivities
	if limit < 1 {
		limit = 20
	}
	return &Inbox{
		session:     session,
		resolver:    resolver,
		actors:      actors,
		concurrency: concurrency,
		limit:       limit,
		maxAge:      cfg.MaxAge.Duration,
	}
}

// Cached is the stored list, without touching the network
func (i *Inbox) Cached(ctx context.Context) []activity.Object {
	v := i.session.Get(ctx, KeyInboxActivities)
	if v == "" {
		return nil
	}
	var list []activity.Object
	if err := json.Unmarshal([]byte(v), &list); err != nil {
		telemetry.Error(err, "discarding stored inbox activities")
		i.session.Remove(ctx, KeyInboxActivities)
		return nil
	}
	return list
}

// Refresh walks the inbox from the newest item until it reaches the
// newest activity already stored, has found enough activities, or
// reaches activities older than the age window.
func (i *Inbox) Refresh(ctx context.Context) ([]activity.Object, error) {
	cached := i.Cached(ctx)
	latestID := ""
	if len(cached) > 0 {
		latestID = cached[0].ID()
	}

	inboxID, err := i.actors.Inbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding inbox: %w", err)
	}

	var cutoff time.Time
	if i.maxAge > 0 {
		cutoff = i.session.now().Add(-i.maxAge)
	}

	found := make([]activity.Object, 0, i.limit)
	pager := NewPager(i.resolver, inboxID, i.concurrency)
	for pager.Next(ctx) {
		obj := pager.Object()
		if !activity.IsActivity(obj) {
			continue
		}
		if latestID != "" && obj.ID() == latestID {
			break
		}
		if activity.IsGeo(obj) {
			full, err := i.resolver.Resolve(ctx, obj, ResolveOptions{Required: activity.RequiredFields(obj)})
			if err != nil {
				full = obj
			}
			found = append(found, full)
		}
		if len(found) >= i.limit {
			break
		}
		if ts := obj.Timestamp(); !cutoff.IsZero() && !ts.IsZero() && !ts.After(cutoff) {
			break
		}
	}
	if err := pager.Err(); err != nil {
		return nil, err
	}

	list := merge(found, cached, i.limit)
	b, err := json.Marshal(list)
	if err != nil {
		return list, fmt.Errorf("encoding inbox activities: %w", err)
	}
	i.session.Set(ctx, KeyInboxActivities, string(b))
	telemetry.Trace("inbox has %d new activities, %d total", len(found), len(list))
	return list, nil
}

// merge puts the new list ahead of the old, dropping repeated ids
func merge(newer, older []activity.Object, limit int) []activity.Object {
	seen := make(map[string]bool)
	list := make([]activity.Object, 0, limit)
	for _, group := range [][]activity.Object{newer, older} {
		for _, obj := range group {
			if len(list) >= limit {
				return list
			}
			if id := obj.ID(); id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			list = append(list, obj)
		}
	}
	return list
}
