package trackings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/ParcelDeck/internal/broker/messages"
	"github.com/BearBump/ParcelDeck/internal/cache"
	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/BearBump/ParcelDeck/internal/services/analytics"
	"github.com/BearBump/ParcelDeck/internal/storage/pgstore"
	"github.com/pkg/errors"
)

type Repository interface {
	SaveTracking(ctx context.Context, t *models.Tracking) (*models.Tracking, error)
	ListTrackings(ctx context.Context) ([]*models.Tracking, error)
	GetTrackingByID(ctx context.Context, id string) (*models.Tracking, error)
	DeleteTracking(ctx context.Context, id string) error
	UpdateTracking(ctx context.Context, t *models.Tracking) error
	MarkDue(ctx context.Context, id string) error
	ListTrackingEvents(ctx context.Context, trackingID string, limit, offset int) ([]*models.TrackingEvent, error)
	ApplyTrackingUpdate(ctx context.Context, upd pgstore.TrackingUpdate) error
}

type TrackResolver interface {
	Resolve(ctx context.Context, trackNumber, nickname string) (*models.Tracking, error)
}

type CarrierSource interface {
	Carriers(ctx context.Context) ([]models.Carrier, error)
}

type Service struct {
	repo       Repository
	resolver   TrackResolver
	carriers   CarrierSource
	cache      cache.BytesCache
	currentTTL time.Duration
}

const carriersTTL = 24 * time.Hour

// ErrInvalidInput помечает ошибки валидации входных данных.
var ErrInvalidInput = errors.New("invalid input")

func New(repo Repository, rs TrackResolver, carriers CarrierSource, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{repo: repo, resolver: rs, carriers: carriers, cache: c, currentTTL: currentTTL}
}

// AddTracking резолвит номер через шлюз и сохраняет результат.
// Повторное добавление известного номера обновляет запись, не плодит новую.
func (s *Service) AddTracking(ctx context.Context, in models.TrackingCreateInput) (*models.Tracking, error) {
	if in.TrackNumber == "" {
		return nil, errors.Wrap(ErrInvalidInput, "trackNumber is required")
	}

	resolved, err := s.resolver.Resolve(ctx, in.TrackNumber, in.Nickname)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.SaveTracking(ctx, resolved)
	if err != nil {
		return nil, err
	}

	s.cachePut(ctx, saved)
	return saved, nil
}

func (s *Service) ListTrackings(ctx context.Context) ([]*models.Tracking, error) {
	return s.repo.ListTrackings(ctx)
}

// GetTracking — чтение с best-effort кэшем текущего состояния.
// Отсутствующий id — (nil, nil), решает вызывающий.
func (s *Service) GetTracking(ctx context.Context, id string) (*models.Tracking, error) {
	if id == "" {
		return nil, errors.Wrap(ErrInvalidInput, "id is required")
	}

	if s.cacheEnabled() {
		if b, ok, err := s.cache.Get(ctx, currentKey(id)); err == nil && ok {
			var t models.Tracking
			if json.Unmarshal(b, &t) == nil {
				return &t, nil
			}
		}
	}

	t, err := s.repo.GetTrackingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}

	s.cachePut(ctx, t)
	return t, nil
}

func (s *Service) DeleteTracking(ctx context.Context, id string) error {
	if id == "" {
		return errors.Wrap(ErrInvalidInput, "id is required")
	}
	if err := s.repo.DeleteTracking(ctx, id); err != nil {
		return err
	}
	if s.cacheEnabled() {
		_ = s.cache.Del(ctx, currentKey(id))
	}
	return nil
}

// RenameTracking меняет пользовательскую метку трека.
func (s *Service) RenameTracking(ctx context.Context, id, nickname string) (*models.Tracking, error) {
	if id == "" {
		return nil, errors.Wrap(ErrInvalidInput, "id is required")
	}
	if nickname == "" {
		return nil, errors.Wrap(ErrInvalidInput, "nickname is required")
	}

	t, err := s.repo.GetTrackingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrapf(pgstore.ErrTrackingMissing, "id %s", id)
	}

	t.Nickname = nickname
	if err := s.repo.UpdateTracking(ctx, t); err != nil {
		return nil, err
	}

	t, err = s.repo.GetTrackingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, t)
	return t, nil
}

// RefreshTracking помечает трек готовым к немедленному опросу воркером.
func (s *Service) RefreshTracking(ctx context.Context, id string) error {
	if id == "" {
		return errors.Wrap(ErrInvalidInput, "id is required")
	}
	return s.repo.MarkDue(ctx, id)
}

func (s *Service) ListTrackingEvents(ctx context.Context, trackingID string, limit, offset int) ([]*models.TrackingEvent, error) {
	return s.repo.ListTrackingEvents(ctx, trackingID, limit, offset)
}

// MonthlyStats считает сводку по календарному месяцу; нулевое время —
// текущий месяц.
func (s *Service) MonthlyStats(ctx context.Context, month time.Time) (analytics.MonthlyStats, error) {
	if month.IsZero() {
		month = time.Now().UTC()
	}
	snapshot, err := s.repo.ListTrackings(ctx)
	if err != nil {
		return analytics.MonthlyStats{}, err
	}
	return analytics.MonthlyStatsFor(snapshot, month), nil
}

func (s *Service) CourierDistribution(ctx context.Context) ([]analytics.CourierStat, error) {
	snapshot, err := s.repo.ListTrackings(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.CourierDistribution(snapshot), nil
}

// Carriers — справочник перевозчиков шлюза, кэшируется надолго.
func (s *Service) Carriers(ctx context.Context) ([]models.Carrier, error) {
	const key = "carriers:all"

	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var out []models.Carrier
			if json.Unmarshal(b, &out) == nil {
				return out, nil
			}
		}
	}

	out, err := s.carriers.Carriers(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, key, b, carriersTTL)
		}
	}
	return out, nil
}

// ApplyKafkaUpdate применяет сообщение воркера к хранилищу и обновляет кэш.
func (s *Service) ApplyKafkaUpdate(ctx context.Context, msg messages.TrackingUpdated) error {
	if msg.TrackingID == "" {
		return errors.Wrap(ErrInvalidInput, "tracking_id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}
	if msg.NextCheckAt.IsZero() {
		// fallback: воркер не прислал next_check_at — проверим через час
		msg.NextCheckAt = msg.CheckedAt.Add(60 * time.Minute)
	}

	var events []*models.TrackingEvent
	for _, e := range msg.Events {
		events = append(events, &models.TrackingEvent{
			Status:    e.Status,
			StatusRaw: e.StatusRaw,
			EventTime: e.EventTime,
			Location:  e.Location,
			Message:   e.Message,
		})
	}

	err := s.repo.ApplyTrackingUpdate(ctx, pgstore.TrackingUpdate{
		TrackingID:        msg.TrackingID,
		CheckedAt:         msg.CheckedAt,
		Status:            msg.Status,
		StatusRaw:         msg.StatusRaw,
		EstimatedDelivery: msg.EstimatedDelivery,
		TransitDays:       msg.TransitDays,
		NextCheckAt:       msg.NextCheckAt,
		Events:            events,
		Error:             msg.Error,
	})
	if err != nil {
		return err
	}

	// Перечитываем запись из БД, чтобы кэш не разошёлся с хранилищем.
	if s.cacheEnabled() {
		t, err := s.repo.GetTrackingByID(ctx, msg.TrackingID)
		if err == nil && t != nil {
			s.cachePut(ctx, t)
		}
	}

	return nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.currentTTL > 0
}

func (s *Service) cachePut(ctx context.Context, t *models.Tracking) {
	if !s.cacheEnabled() || t == nil {
		return
	}
	if b, err := json.Marshal(t); err == nil {
		_ = s.cache.Set(ctx, currentKey(t.ID), b, s.currentTTL)
	}
}

func currentKey(id string) string {
	return fmt.Sprintf("tracking:%s:current", id)
}
