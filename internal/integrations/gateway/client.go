package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
)

// TrackInfo — сырой ответ шлюза по одному трек-номеру, до нормализации.
type TrackInfo struct {
	TrackNumber string
	CarrierCode string
	CarrierName string
	CarrierLogo *string

	Status    string
	SubStatus string

	EstimatedDelivery *time.Time
	TransitDays       int

	Events []TrackEvent
}

type TrackEvent struct {
	EventTime time.Time
	Location  string
	Message   string
	SubStatus string
}

type Client interface {
	// Register просит шлюз начать мониторинг номера. Идемпотентна:
	// повторная регистрация известного номера не считается ошибкой.
	Register(ctx context.Context, trackNumber string) error
	Query(ctx context.Context, trackNumbers []string) ([]TrackInfo, error)
	Carriers(ctx context.Context) ([]models.Carrier, error)
}

// Error — не-успешный код ответа шлюза либо транспортный сбой.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: code=%d %s", e.Code, e.Message)
}
