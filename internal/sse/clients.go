// Package sse provides Server-Sent Events client management for real-time communication.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/codu-code/codu/internal/model"
	"github.com/rs/zerolog"
)

var sseLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

const (
	EventConnected    = "connected"
	EventNotification = "notification"
	EventPublished    = "post.published"

	clientBuffer = 16
)

type Event struct {
	Name string
	Data any
}

// WriteTo encodes e in the text/event-stream format.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return 0, fmt.Errorf("encode event %s: %w", e.Name, err)
	}
	n, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Name, data)
	return int64(n), err
}

type Client struct {
	Msg    chan Event
	UserID model.UserID
}

func NewClient(userID model.UserID) *Client {
	return &Client{
		Msg:    make(chan Event, clientBuffer),
		UserID: userID,
	}
}

// SSEClients tracks open streams by user. A user may hold several streams.
type SSEClients struct {
	clients map[model.UserID]map[*Client]struct{}
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[model.UserID]map[*Client]struct{}),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.clients[client.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		s.clients[client.UserID] = set
	}
	set[client] = struct{}{}
	sseLogger.Debug().Str("user_id", string(client.UserID)).Int("streams", len(set)).Msg("SSE client connected")
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(s.clients, client.UserID)
	}
	close(client.Msg)
	sseLogger.Debug().Str("user_id", string(client.UserID)).Msg("SSE client disconnected")
}

// Send delivers ev to every stream of userID and reports how many accepted
// it. Slow clients with a full buffer miss the event.
func (s *SSEClients) Send(userID model.UserID, ev Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sent := 0
	for client := range s.clients[userID] {
		select {
		case client.Msg <- ev:
			sent++
		default:
			sseLogger.Warn().Str("user_id", string(userID)).Str("event", ev.Name).Msg("Dropping event for slow client")
		}
	}
	return sent
}

// Count returns the number of open streams.
func (s *SSEClients) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.clients {
		n += len(set)
	}
	return n
}
