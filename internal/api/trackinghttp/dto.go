package trackinghttp

import (
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
)

type trackingDTO struct {
	ID          string `json:"id"`
	TrackNumber string `json:"trackingNumber"`
	Nickname    string `json:"nickname"`

	CarrierCode string  `json:"carrierCode,omitempty"`
	CarrierName string  `json:"carrierName,omitempty"`
	CarrierLogo *string `json:"carrierLogo,omitempty"`

	Status    models.DeliveryStatus `json:"status"`
	StatusRaw string                `json:"statusRaw,omitempty"`
	Progress  int                   `json:"progress"`

	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
	TransitDays       int        `json:"transitDays,omitempty"`

	Events []eventDTO `json:"events,omitempty"`

	LastError *string `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type eventDTO struct {
	Status    models.DeliveryStatus `json:"status"`
	StatusRaw string                `json:"statusRaw,omitempty"`
	EventTime time.Time             `json:"eventTime"`
	Location  string                `json:"location,omitempty"`
	Message   string                `json:"message,omitempty"`
}

type carrierDTO struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Logo *string `json:"logo,omitempty"`
}

func trackingToDTO(t *models.Tracking) trackingDTO {
	dto := trackingDTO{
		ID:                t.ID,
		TrackNumber:       t.TrackNumber,
		Nickname:          t.Nickname,
		CarrierCode:       t.CarrierCode,
		CarrierName:       t.CarrierName,
		CarrierLogo:       t.CarrierLogo,
		Status:            t.Status,
		StatusRaw:         t.StatusRaw,
		Progress:          models.Progress(t.Status),
		EstimatedDelivery: t.EstimatedDelivery,
		TransitDays:       t.TransitDays,
		LastError:         t.LastError,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	// В хранилище события старые-первыми; наружу отдаём свежие-первыми.
	for i := len(t.Events) - 1; i >= 0; i-- {
		dto.Events = append(dto.Events, eventToDTO(t.Events[i]))
	}
	return dto
}

func eventToDTO(e *models.TrackingEvent) eventDTO {
	return eventDTO{
		Status:    e.Status,
		StatusRaw: e.StatusRaw,
		EventTime: e.EventTime,
		Location:  e.Location,
		Message:   e.Message,
	}
}
