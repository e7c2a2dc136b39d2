// Package sse fans job status updates out to streaming clients. The pipeline
// publishes a snapshot after every store write; stream handlers subscribe on
// the job id and also poll as a fallback, so a dropped message is never fatal.
package sse

import (
	"sync"

	"github.com/google/uuid"

	"github.com/veripack/veripack-backend/internal/logger"
)

const (
	EventStatus = "status"
	EventDone   = "done"
)

type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Client struct {
	ID       uuid.UUID
	JobID    string
	Outbound chan Message
}

type Hub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (hub *Hub) Subscribe(jobID string) *Client {
	client := &Client{
		ID:       uuid.New(),
		JobID:    jobID,
		Outbound: make(chan Message, 16),
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	clients, ok := hub.subscriptions[jobID]
	if !ok {
		clients = make(map[*Client]bool)
		hub.subscriptions[jobID] = clients
	}
	clients[client] = true
	hub.logger.Debug("SSE client subscribed", "clientID", client.ID, "jobID", jobID)
	return client
}

func (hub *Hub) Unsubscribe(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if clients, ok := hub.subscriptions[client.JobID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(hub.subscriptions, client.JobID)
		}
	}
	hub.logger.Debug("SSE client unsubscribed", "clientID", client.ID, "jobID", client.JobID)
}

// Publish never blocks; slow clients drop messages and catch up via polling.
func (hub *Hub) Publish(jobID string, msg Message) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for client := range hub.subscriptions[jobID] {
		select {
		case client.Outbound <- msg:
		default:
			hub.logger.Warn("Dropping SSE message; outbound buffer full", "clientID", client.ID)
		}
	}
}
