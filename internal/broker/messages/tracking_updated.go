package messages

import (
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
)

// TrackingUpdated — результат одного опроса шлюза воркером.
type TrackingUpdated struct {
	TrackingID string    `json:"tracking_id"`
	CheckedAt  time.Time `json:"checked_at"`

	Status    models.DeliveryStatus `json:"status,omitempty"`
	StatusRaw string                `json:"status_raw,omitempty"`

	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	TransitDays       int        `json:"transit_days,omitempty"`

	NextCheckAt time.Time `json:"next_check_at"`

	Events []TrackingEvent `json:"events,omitempty"`

	Error *string `json:"error,omitempty"`
}

type TrackingEvent struct {
	Status    models.DeliveryStatus `json:"status"`
	StatusRaw string                `json:"status_raw"`
	EventTime time.Time             `json:"event_time"`
	Location  string                `json:"location,omitempty"`
	Message   string                `json:"message,omitempty"`
}
