package models

import "strings"

// Нормализованные статусы доставки (закрытый набор).
type DeliveryStatus string

const (
	StatusPending        DeliveryStatus = "pending"
	StatusInfoReceived   DeliveryStatus = "info_received"
	StatusInTransit      DeliveryStatus = "in_transit"
	StatusOutForDelivery DeliveryStatus = "out_for_delivery"
	StatusDelivered      DeliveryStatus = "delivered"
	StatusException      DeliveryStatus = "exception"
	StatusFailedAttempt  DeliveryStatus = "failed_attempt"
	StatusExpired        DeliveryStatus = "expired"
	StatusUnknown        DeliveryStatus = "unknown"
)

var statusByRaw = map[string]DeliveryStatus{
	"PENDING":          StatusPending,
	"NO_FOUND":         StatusPending,
	"INFO_RECEIVED":    StatusInfoReceived,
	"IN_TRANSIT":       StatusInTransit,
	"OUT_FOR_DELIVERY": StatusOutForDelivery,
	"DELIVERED":        StatusDelivered,
	"EXCEPTION":        StatusException,
	"FAILED_ATTEMPT":   StatusFailedAttempt,
	"EXPIRED":          StatusExpired,
}

// NormalizeStatus переводит статус из словаря шлюза в наш набор.
// Пустая строка — трек ещё не отслеживается, считаем pending.
func NormalizeStatus(raw string) DeliveryStatus {
	if raw == "" {
		return StatusPending
	}
	if st, ok := statusByRaw[strings.ToUpper(raw)]; ok {
		return st
	}
	return StatusUnknown
}

// statusProgress — статическая таблица для прогресс-бара в UI.
var statusProgress = map[DeliveryStatus]int{
	StatusPending:        0,
	StatusInfoReceived:   15,
	StatusInTransit:      50,
	StatusOutForDelivery: 80,
	StatusDelivered:      100,
	StatusException:      50,
	StatusFailedAttempt:  80,
	StatusExpired:        0,
	StatusUnknown:        0,
}

func Progress(st DeliveryStatus) int {
	return statusProgress[st]
}
