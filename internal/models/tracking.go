package models

import "time"

type Tracking struct {
	ID          string
	TrackNumber string
	Nickname    string

	CarrierCode string
	CarrierName string
	CarrierLogo *string

	Status    DeliveryStatus
	StatusRaw string

	// Events хранятся старые-первыми; наружу отдаются свежие-первыми.
	Events []*TrackingEvent

	EstimatedDelivery *time.Time
	TransitDays       int

	NextCheckAt    time.Time
	CheckFailCount int32
	LastError      *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type TrackingEvent struct {
	ID         uint64
	TrackingID string
	Status     DeliveryStatus
	StatusRaw  string
	EventTime  time.Time
	Location   string
	Message    string
	CreatedAt  time.Time
}

type TrackingCreateInput struct {
	TrackNumber string
	Nickname    string
}

type Carrier struct {
	Code string
	Name string
	Logo *string
}
