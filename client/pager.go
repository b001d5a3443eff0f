package client

import (
	"context"

	"github.com/tkrehbiel/checkin/client/activity"
	"github.com/tkrehbiel/checkin/client/telemetry"
	"golang.org/x/sync/errgroup"
)

// memberFields lets embedded collection members skip a fetch
var memberFields = []string{activity.IDProperty, activity.TypeProperty, activity.PublishedProperty}

// Pager walks a Collection or OrderedCollection one member at a time,
// fetching pages only as they are needed. It can't be restarted.
//
//	p := NewPager(resolver, inboxID, 4)
//	for p.Next(ctx) {
//		obj := p.Object()
//	}
//	if err := p.Err(); err != nil { ... }
type Pager struct {
	resolver    *Resolver
	root        any
	concurrency int

	started bool
	done    bool
	pending any // reference to the next page
	visited map[string]bool
	buffer  []activity.Object
	current activity.Object
	err     error
}

func NewPager(resolver *Resolver, root any, concurrency int) *Pager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pager{
		resolver:    resolver,
		root:        root,
		concurrency: concurrency,
		visited:     make(map[string]bool),
	}
}

// Next advances to the next member, returning false when there are no more
func (p *Pager) Next(ctx context.Context) bool {
	for {
		if err := ctx.Err(); err != nil {
			p.err = err
			p.finish()
			return false
		}
		if len(p.buffer) > 0 {
			p.current = p.buffer[0]
			p.buffer = p.buffer[1:]
			return true
		}
		if p.done {
			p.current = nil
			return false
		}
		if !p.started {
			p.started = true
			p.start(ctx)
			continue
		}
		if !p.page(ctx) {
			p.finish()
		}
	}
}

// Object is the current member
func (p *Pager) Object() activity.Object {
	return p.current
}

// Err is the context error that stopped the walk, if any.
// Collections that can't be followed simply end.
func (p *Pager) Err() error {
	return p.err
}

func (p *Pager) finish() {
	p.done = true
	p.buffer = nil
	p.pending = nil
}

func (p *Pager) start(ctx context.Context) {
	root, err := p.resolver.Resolve(ctx, p.root, ResolveOptions{BypassCache: true})
	if err != nil {
		telemetry.Trace("collection %v unresolvable", p.root)
		p.finish()
		return
	}
	p.visited[root.ID()] = true
	if items, ok := members(root); ok {
		p.buffer = p.hydrate(ctx, items)
		p.done = true
		return
	}
	first, ok := root[activity.FirstProperty]
	if !ok || first == nil {
		p.finish()
		return
	}
	p.pending = first
}

// page loads the pending page into the buffer and queues up the one after.
// Returns false when there is nothing left to load.
func (p *Pager) page(ctx context.Context) bool {
	if p.pending == nil {
		return false
	}
	id := activity.ToID(p.pending)
	if id != "" {
		if p.visited[id] {
			telemetry.Log("collection page %s seen before, stopping", id)
			return false
		}
		p.visited[id] = true
	}
	page, err := p.resolver.Resolve(ctx, p.pending, ResolveOptions{BypassCache: true})
	p.pending = nil
	if err != nil {
		return false
	}
	if items, ok := members(page); ok {
		p.buffer = p.hydrate(ctx, items)
	}
	if next, ok := page[activity.NextProperty]; ok && next != nil {
		p.pending = next
	}
	return true
}

// hydrate resolves a page's members concurrently, keeping their order.
// Members that can't be resolved are dropped.
func (p *Pager) hydrate(ctx context.Context, items []any) []activity.Object {
	resolved := make([]activity.Object, len(items))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, item := range items {
		g.Go(func() error {
			obj, err := p.resolver.Resolve(ctx, item, ResolveOptions{Required: memberFields})
			if err != nil {
				telemetry.Trace("skipping collection member %v: %s", item, err)
				return nil
			}
			resolved[i] = obj
			return nil
		})
	}
	g.Wait()
	objects := make([]activity.Object, 0, len(resolved))
	for _, obj := range resolved {
		if obj != nil {
			objects = append(objects, obj)
		}
	}
	return objects
}

// members are the inline items of a collection or page, if it has any
func members(obj activity.Object) ([]any, bool) {
	for _, prop := range []string{activity.ItemsProperty, activity.OrderedProperty} {
		v, ok := obj[prop]
		if !ok || v == nil {
			continue
		}
		if arr, ok := v.([]any); ok {
			return arr, true
		}
		// a single member compacted out of its array
		return []any{v}, true
	}
	return nil, false
}
