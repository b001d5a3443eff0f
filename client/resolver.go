package client

import (
	"context"
	"errors"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

var ErrUnresolvable = errors.New("reference cannot be resolved")

type ResolveOptions struct {
	BypassCache bool     // neither read nor write the object cache
	Required    []string // an embedded object with all of these is used as-is
}

// Resolver turns references into objects: bare ids, embedded objects
// or arrays. It reads through the object cache in the session store.
type Resolver struct {
	session *Session
	fetcher *Fetcher
}

func NewResolver(session *Session, fetcher *Fetcher) *Resolver {
	return &Resolver{session: session, fetcher: fetcher}
}

// Resolve hydrates a reference.
// When the object can't be fetched the result degrades to whatever
// the reference itself offers. ErrUnresolvable means it offers nothing.
func (r *Resolver) Resolve(ctx context.Context, ref any, opts ResolveOptions) (activity.Object, error) {
	if len(opts.Required) > 0 {
		if obj, ok := activity.AsObject(ref); ok && obj.Has(opts.Required...) {
			return obj, nil
		}
	}

	id := activity.ToID(ref)
	if id == "" {
		return r.degrade(ref)
	}

	if !opts.BypassCache {
		if obj, ok := r.cached(ctx, id); ok {
			return obj, nil
		}
	}

	obj, err := r.fetcher.GetObject(ctx, id)
	if err != nil {
		telemetry.Trace("resolving %s: %s", id, err)
		return r.degrade(ref)
	}

	if !opts.BypassCache {
		r.session.Set(ctx, CacheKey(id), string(obj.JSON()))
	}
	return obj, nil
}

func (r *Resolver) cached(ctx context.Context, id string) (activity.Object, bool) {
	v := r.session.Get(ctx, CacheKey(id))
	if v == "" {
		telemetry.Increment("cache_misses", 1)
		return nil, false
	}
	obj, err := activity.NewObject([]byte(v))
	if err != nil {
		telemetry.Error(err, "evicting cached object [%s]", id)
		telemetry.Increment("cache_evictions", 1)
		r.session.Remove(ctx, CacheKey(id))
		return nil, false
	}
	telemetry.Increment("cache_hits", 1)
	return obj, true
}

// degrade makes what it can of a reference without the network
func (r *Resolver) degrade(ref any) (activity.Object, error) {
	telemetry.Increment("resolve_degraded", 1)
	return fallback(ref)
}

func fallback(ref any) (activity.Object, error) {
	switch v := ref.(type) {
	case string:
		if v != "" {
			return activity.Object{activity.IDProperty: v}, nil
		}
	case []any:
		if len(v) > 0 {
			return fallback(v[0])
		}
	}
	if obj, ok := activity.AsObject(ref); ok {
		return obj, nil
	}
	return nil, ErrUnresolvable
}

// Invalidate drops an object from the cache
func (r *Resolver) Invalidate(ctx context.Context, id string) {
	r.session.Remove(ctx, CacheKey(id))
}
