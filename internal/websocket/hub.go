package websocket

import (
	"context"
	"sync"

	"chat-delivery/pkg/logger"
)

// Hub tracks every open client so shutdown can close them all. Routing and
// presence live in the realtime package; the hub only owns connection lifetime.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	shutdown   chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		shutdown:   make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case <-h.shutdown:
			logger.Info("Closing %d websocket connection(s)", len(h.clients))
			for client := range h.clients {
				client.Close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			logger.Debug("Connection %s opened (%d open)", client.ID(), len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				logger.Debug("Connection %s closed (%d open)", client.ID(), len(h.clients))
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Add registers a client. It returns false once the hub is shutting down.
func (h *Hub) Add(c *Client) bool {
	h.wg.Add(1)
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		h.wg.Done()
		return false
	}
}

// Remove must be called exactly once for every client Add accepted.
func (h *Hub) Remove(c *Client) {
	defer h.wg.Done()
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) Count() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}

// Shutdown closes every client and waits until their read pumps have released
// their sessions, or until ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.shutdown) })
	<-h.stopped

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
