package core

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const defaultClientBuffer = 64

// Client is a live connection as seen by the core layer.
type Client struct {
	ID       string
	Addr     string
	Commands chan *Command
	Events   chan *Event

	limiter   *rate.Limiter
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels.
// buffer bounds the outbound queue; a client that falls that far behind is dropped.
func NewClient(id, addr string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       id,
		Addr:     addr,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Done is closed once the hub stops serving the client.
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *Client) close() {
	c.closeOnce.Do(c.cancel)
}
