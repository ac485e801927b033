package eventhub

import (
	"context"
	"sync"
	"time"
)

// Event names pushed to clients
const (
	EventProjectMessage        = "project-message"
	EventFileVersionCreated    = "file-version:created"
	EventProjectVersionCreated = "project-version:created"
)

// Broadcaster delivers an event to the clients watching a project
type Broadcaster interface {
	BroadcastEvent(projectID, eventType string, payload interface{})
}

// EventHub fans domain events out to the registered broadcasters
type EventHub struct {
	ctx          context.Context
	mu           sync.RWMutex
	broadcasters []Broadcaster
}

// New creates an EventHub
func New(ctx context.Context) *EventHub {
	return &EventHub{ctx: ctx}
}

// AddBroadcaster registers a broadcaster
func (h *EventHub) AddBroadcaster(b Broadcaster) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasters = append(h.broadcasters, b)
}

func (h *EventHub) emit(projectID, eventName string, payload interface{}) {
	if h.ctx != nil && h.ctx.Err() != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, b := range h.broadcasters {
		b.BroadcastEvent(projectID, eventName, payload)
	}
}

// Emit sends an arbitrary event
func (h *EventHub) Emit(projectID, eventName string, payload interface{}) {
	h.emit(projectID, eventName, payload)
}

// ProjectMessageEvent is a chat message posted to a project
type ProjectMessageEvent struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Sender    string    `json:"sender"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *EventHub) EmitProjectMessage(event ProjectMessageEvent) {
	h.emit(event.ProjectID, EventProjectMessage, event)
}

// FileVersionCreatedEvent announces a new file revision. Content is not
// included; clients fetch it by ID with files.get.
type FileVersionCreatedEvent struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	FilePath  string `json:"filePath"`
	Version   int    `json:"version"`
	IsDeleted bool   `json:"isDeleted"`
	MessageID string `json:"messageId,omitempty"`
}

func (h *EventHub) EmitFileVersionCreated(event FileVersionCreatedEvent) {
	h.emit(event.ProjectID, EventFileVersionCreated, event)
}

// ProjectVersionCreatedEvent announces a new project snapshot
type ProjectVersionCreatedEvent struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	Version     int    `json:"version"`
	Description string `json:"description"`
	FilesCount  int    `json:"filesCount"`
	MessageID   string `json:"messageId,omitempty"`
}

func (h *EventHub) EmitProjectVersionCreated(event ProjectVersionCreatedEvent) {
	h.emit(event.ProjectID, EventProjectVersionCreated, event)
}
