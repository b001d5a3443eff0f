package client

import (
	"github.com/tkrehbiel/checkin/client/storage"
	"github.com/tkrehbiel/checkin/client/telemetry"
)

// Client bundles the components built around one session
type Client struct {
	Config   Config
	Session  *Session
	Fetcher  *Fetcher
	Resolver *Resolver
	Actors   *Actors
	Inbox    *Inbox
	Outbox   *Outbox
}

func New(cfg Config, store storage.Store) *Client {
	telemetry.SetTrace(cfg.Verbose)
	session := NewSession(store, cfg.ClientID)
	fetcher := NewFetcher(session, cfg.Fetch)
	resolver := NewResolver(session, fetcher)
	actors := NewActors(session, fetcher)
	return &Client{
		Config:   cfg,
		Session:  session,
		Fetcher:  fetcher,
		Resolver: resolver,
		Actors:   actors,
		Inbox:    NewInbox(session, resolver, actors, cfg.Inbox, cfg.Fetch.Concurrency),
		Outbox:   NewOutbox(session, fetcher, resolver, actors),
	}
}

// Pager walks any collection with the client's resolver
func (c *Client) Pager(collection any) *Pager {
	return NewPager(c.Resolver, collection, c.Config.Fetch.Concurrency)
}
