package client

import (
	"context"
	"maps"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
	"golang.org/x/sync/errgroup"
)

// Fields a part needs before it can be displayed without a fetch
var (
	actorFields = []string{activity.IDProperty, activity.NameProperty, activity.IconProperty}
	partFields  = []string{activity.IDProperty, activity.NameProperty}
)

// partProperties are the references shown for an activity of a type
func partProperties(act activity.Object) []string {
	props := []string{activity.ActorProperty, activity.LocationProperty, activity.TargetProperty, activity.OriginProperty}
	if act.Type() == activity.LeaveType {
		props = append(props, activity.ObjectProperty)
	}
	return props
}

type part struct {
	index int
	prop  string
	ref   any
}

// Hydrate resolves the actor and places of each activity concurrently
// and returns copies with the resolved objects embedded. A part that
// can't be resolved keeps its original reference.
func (c *Client) Hydrate(ctx context.Context, list []activity.Object) []activity.Object {
	out := make([]activity.Object, len(list))
	var parts []part
	for i, act := range list {
		out[i] = maps.Clone(act)
		for _, prop := range partProperties(act) {
			if ref, ok := act[prop]; ok && ref != nil {
				parts = append(parts, part{index: i, prop: prop, ref: ref})
			}
		}
	}

	resolved := make([]activity.Object, len(parts))
	var g errgroup.Group
	g.SetLimit(max(c.Config.Fetch.Concurrency, 1))
	for n, p := range parts {
		g.Go(func() error {
			required := partFields
			if p.prop == activity.ActorProperty {
				required = actorFields
			}
			obj, err := c.Resolver.Resolve(ctx, p.ref, ResolveOptions{Required: required})
			if err != nil {
				telemetry.Trace("leaving %s of activity %d unresolved: %s", p.prop, p.index, err)
				return nil
			}
			resolved[n] = obj
			return nil
		})
	}
	g.Wait()

	for n, p := range parts {
		if resolved[n] != nil {
			out[p.index][p.prop] = map[string]any(resolved[n])
		}
	}
	return out
}
