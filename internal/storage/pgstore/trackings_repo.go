package pgstore

import (
	"context"
	"time"

	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const trackingColumns = `
  id, track_number, nickname,
  carrier_code, carrier_name, carrier_logo,
  status, status_raw,
  estimated_delivery, transit_days,
  next_check_at, check_fail_count, last_error,
  created_at, updated_at`

// SaveTracking — upsert по track_number: повторное добавление того же
// номера обновляет существующую запись, id и created_at сохраняются.
func (s *Storage) SaveTracking(ctx context.Context, t *models.Tracking) (*models.Tracking, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
INSERT INTO trackings (
  id, track_number, nickname,
  carrier_code, carrier_name, carrier_logo,
  status, status_raw,
  estimated_delivery, transit_days,
  next_check_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
ON CONFLICT (track_number)
DO UPDATE SET
  nickname = EXCLUDED.nickname,
  carrier_code = EXCLUDED.carrier_code,
  carrier_name = EXCLUDED.carrier_name,
  carrier_logo = EXCLUDED.carrier_logo,
  status = EXCLUDED.status,
  status_raw = EXCLUDED.status_raw,
  estimated_delivery = EXCLUDED.estimated_delivery,
  transit_days = EXCLUDED.transit_days,
  next_check_at = EXCLUDED.next_check_at,
  updated_at = EXCLUDED.updated_at
RETURNING id
`, t.ID, t.TrackNumber, t.Nickname,
		t.CarrierCode, t.CarrierName, t.CarrierLogo,
		string(t.Status), t.StatusRaw,
		t.EstimatedDelivery, t.TransitDays,
		t.NextCheckAt.UTC(), now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "upsert tracking")
	}

	for _, e := range t.Events {
		_, err := tx.Exec(ctx, `
INSERT INTO tracking_events (
  tracking_id, status, status_raw, event_time, location, message, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (tracking_id, status_raw, event_time, location, message) DO NOTHING
`, id, string(e.Status), e.StatusRaw, e.EventTime.UTC(), e.Location, e.Message)
		if err != nil {
			return nil, errors.Wrap(err, "insert tracking event")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetTrackingByID(ctx, id)
}

// GetTrackingByID возвращает трек вместе с событиями (старые-первыми)
// либо nil, если записи нет.
func (s *Storage) GetTrackingByID(ctx context.Context, id string) (*models.Tracking, error) {
	row := s.db.QueryRow(ctx, `SELECT`+trackingColumns+` FROM trackings WHERE id = $1`, id)

	t, err := scanTracking(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracking")
	}

	rows, err := s.db.Query(ctx, `
SELECT id, tracking_id, status, status_raw, event_time, location, message, created_at
FROM tracking_events
WHERE tracking_id = $1
ORDER BY event_time ASC, id ASC
`, id)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

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
		t.Events = append(t.Events, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return t, nil
}

func (s *Storage) GetTrackingByNumber(ctx context.Context, trackNumber string) (*models.Tracking, error) {
	row := s.db.QueryRow(ctx, `SELECT`+trackingColumns+` FROM trackings WHERE track_number = $1`, trackNumber)
	t, err := scanTracking(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracking by number")
	}
	return t, nil
}

// ListTrackings — полный снапшот без событий, стабильный порядок по created_at.
func (s *Storage) ListTrackings(ctx context.Context) ([]*models.Tracking, error) {
	rows, err := s.db.Query(ctx, `SELECT`+trackingColumns+` FROM trackings ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "select trackings")
	}
	defer rows.Close()

	out := []*models.Tracking{}
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracking")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) DeleteTracking(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM trackings WHERE id = $1`, id)
	return errors.Wrap(err, "delete tracking")
}

// UpdateTracking обновляет изменяемые поля по id.
// Неизвестный id — ErrTrackingMissing.
func (s *Storage) UpdateTracking(ctx context.Context, t *models.Tracking) error {
	ct, err := s.db.Exec(ctx, `
UPDATE trackings
SET
  nickname = $2,
  status = $3,
  status_raw = $4,
  estimated_delivery = $5,
  transit_days = $6,
  updated_at = now()
WHERE id = $1
`, t.ID, t.Nickname, string(t.Status), t.StatusRaw, t.EstimatedDelivery, t.TransitDays)
	if err != nil {
		return errors.Wrap(err, "update tracking")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(ErrTrackingMissing, "id %s", t.ID)
	}
	return nil
}

// MarkDue делает трек немедленно готовым к опросу воркером.
func (s *Storage) MarkDue(ctx context.Context, id string) error {
	ct, err := s.db.Exec(ctx, `UPDATE trackings SET next_check_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "mark due")
	}
	if ct.RowsAffected() == 0 {
		return errors.Wrapf(ErrTrackingMissing, "id %s", id)
	}
	return nil
}

// ClaimDueTrackings выбирает пачку треков, готовых к проверке, и "бронирует"
// их на lease, чтобы воркеры не обрабатывали один трек дважды.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueTrackings(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Tracking, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+trackingColumns+`
FROM trackings
WHERE next_check_at <= $1
  AND status NOT IN ($2, $3)
ORDER BY next_check_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), string(models.StatusDelivered), string(models.StatusExpired), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due trackings")
	}
	defer rows.Close()

	var picked []*models.Tracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan due tracking")
		}
		picked = append(picked, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, t := range picked {
		_, err := tx.Exec(ctx, `UPDATE trackings SET next_check_at = $2, updated_at = now() WHERE id = $1`, t.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease tracking")
		}
		t.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func scanTracking(row pgx.Row) (*models.Tracking, error) {
	var t models.Tracking
	var status string
	if err := row.Scan(
		&t.ID, &t.TrackNumber, &t.Nickname,
		&t.CarrierCode, &t.CarrierName, &t.CarrierLogo,
		&status, &t.StatusRaw,
		&t.EstimatedDelivery, &t.TransitDays,
		&t.NextCheckAt, &t.CheckFailCount, &t.LastError,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = models.DeliveryStatus(status)
	return &t, nil
}
