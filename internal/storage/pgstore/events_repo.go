package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type TrackingUpdate struct {
	TrackingID string

	CheckedAt time.Time

	Status    models.DeliveryStatus
	StatusRaw string

	EstimatedDelivery *time.Time
	TransitDays       int

	NextCheckAt time.Time

	Events []*models.TrackingEvent

	Error *string
}

// ListTrackingEvents — история для отображения, свежие-первыми.
func (s *Storage) ListTrackingEvents(ctx context.Context, trackingID string, limit, offset int) ([]*models.TrackingEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
SELECT id, tracking_id, status, status_raw, event_time, location, message, created_at
FROM tracking_events
WHERE tracking_id = $1
ORDER BY event_time DESC, id DESC
LIMIT $2 OFFSET $3
`, trackingID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var out []*models.TrackingEvent
	for rows.Next() {
		var e models.TrackingEvent
		var status string
		if err := rows.Scan(
			&e.ID, &e.TrackingID, &status, &e.StatusRaw,
			&e.EventTime, &e.Location, &e.Message, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e.Status = models.DeliveryStatus(status)
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ApplyTrackingUpdate применяет результат опроса шлюза: статусные поля и
// новые события при успехе, счётчик сбоев и last_error при ошибке.
func (s *Storage) ApplyTrackingUpdate(ctx context.Context, upd TrackingUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if upd.Error != nil && *upd.Error != "" {
		_, err := tx.Exec(ctx, `
UPDATE trackings
SET
  check_fail_count = check_fail_count + 1,
  last_error = $2,
  next_check_at = $3,
  updated_at = now()
WHERE id = $1
`, upd.TrackingID, *upd.Error, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update tracking (error)")
		}
	} else {
		_, err := tx.Exec(ctx, `
UPDATE trackings
SET
  status = $2,
  status_raw = $3,
  estimated_delivery = $4,
  transit_days = $5,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $6,
  updated_at = now()
WHERE id = $1
`, upd.TrackingID, string(upd.Status), upd.StatusRaw, upd.EstimatedDelivery, upd.TransitDays, upd.NextCheckAt.UTC())
		if err != nil {
			return errors.Wrap(err, "update tracking (ok)")
		}

		for _, e := range upd.Events {
			_, err := tx.Exec(ctx, `
INSERT INTO tracking_events (
  tracking_id, status, status_raw, event_time, location, message, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (tracking_id, status_raw, event_time, location, message) DO NOTHING
`, upd.TrackingID, string(e.Status), e.StatusRaw, e.EventTime.UTC(), e.Location, e.Message)
			if err != nil {
				return errors.Wrap(err, "insert tracking event")
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
