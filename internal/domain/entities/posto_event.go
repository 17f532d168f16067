package entities

import (
	"time"

	"github.com/google/uuid"
)

// PostoEventType represents the type of posto event
type PostoEventType string

const (
	PostoEventTypeCreated              PostoEventType = "posto.created"
	PostoEventTypeUpdated              PostoEventType = "posto.updated"
	PostoEventTypeDeleted              PostoEventType = "posto.deleted"
	PostoEventTypeServiceStatusUpdated PostoEventType = "posto.service_status_updated"
	PostoEventTypeReviewAdded          PostoEventType = "posto.review_added"
)

// PostoEvent is a real-time update notification for a posto, published
// after a mutation has been persisted.
type PostoEvent struct {
	ID            string                 `json:"id"`
	PostoID       string                 `json:"posto_id"`
	EventType     PostoEventType         `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	Location      GeoPoint               `json:"location"`
	ChangedFields map[string]interface{} `json:"changed_fields,omitempty"`
}

// NewPostoEvent creates a new posto event
func NewPostoEvent(postoID string, eventType PostoEventType, location GeoPoint, changedFields map[string]interface{}) *PostoEvent {
	return &PostoEvent{
		ID:            uuid.New().String(),
		PostoID:       postoID,
		EventType:     eventType,
		Timestamp:     time.Now().UTC(),
		Location:      location,
		ChangedFields: changedFields,
	}
}
