package events

import (
	"context"
	"sync"
	"time"

	"promo-console-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventDrawCompleted is emitted after a winner is persisted
	EventDrawCompleted EventType = "draw.completed"
	// EventPromotionDeactivated is emitted when a promotion goes inactive
	EventPromotionDeactivated EventType = "promotion.deactivated"
	// EventContentExpired is emitted when a sweep deactivates content items
	EventContentExpired EventType = "content.expired"
	// EventContentUploaded is emitted when a new content item is registered
	EventContentUploaded EventType = "content.uploaded"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// DrawCompletedData contains data for draw completed events.
type DrawCompletedData struct {
	AccountID   string
	PromotionID string
	Winner      models.Participant
	DrawnAt     time.Time
}

// PromotionDeactivatedData contains data for deactivation events.
type PromotionDeactivatedData struct {
	AccountID   string
	PromotionID string
}

// ContentExpiredData contains data for content expiry events.
type ContentExpiredData struct {
	AccountID    string
	StoragePaths []string
	SweptAt      time.Time
}

// ContentUploadedData contains data for content upload events.
type ContentUploadedData struct {
	AccountID string
	Item      models.ContentItem
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// Handlers run asynchronously; failures are the subscriber's concern
	for _, handler := range handlers {
		go func(h Handler) {
			_ = h(ctx, event)
		}(handler)
	}
}

// PublishDrawCompleted publishes a draw completed event.
func (m *Manager) PublishDrawCompleted(ctx context.Context, accountID, promotionID string, winner models.Participant, drawnAt time.Time) {
	m.Publish(ctx, EventDrawCompleted, DrawCompletedData{
		AccountID:   accountID,
		PromotionID: promotionID,
		Winner:      winner,
		DrawnAt:     drawnAt,
	})
}

// PublishPromotionDeactivated publishes a promotion deactivated event.
func (m *Manager) PublishPromotionDeactivated(ctx context.Context, accountID, promotionID string) {
	m.Publish(ctx, EventPromotionDeactivated, PromotionDeactivatedData{
		AccountID:   accountID,
		PromotionID: promotionID,
	})
}

// PublishContentExpired publishes a content expired event.
func (m *Manager) PublishContentExpired(ctx context.Context, accountID string, storagePaths []string) {
	m.Publish(ctx, EventContentExpired, ContentExpiredData{
		AccountID:    accountID,
		StoragePaths: storagePaths,
		SweptAt:      time.Now(),
	})
}

// PublishContentUploaded publishes a content uploaded event.
func (m *Manager) PublishContentUploaded(ctx context.Context, accountID string, item models.ContentItem) {
	m.Publish(ctx, EventContentUploaded, ContentUploadedData{
		AccountID: accountID,
		Item:      item,
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
