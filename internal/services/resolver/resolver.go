package resolver

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/BearBump/ParcelDeck/internal/integrations/gateway"
	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotFound — шлюз не нашёл посылку даже после регистрации номера.
var ErrNotFound = errors.New("tracking not found")

// ErrEmptyTrackNumber — резолвить нечего, до шлюза не доходим.
var ErrEmptyTrackNumber = errors.New("trackNumber is required")

type Gateway interface {
	Register(ctx context.Context, trackNumber string) error
	Query(ctx context.Context, trackNumbers []string) ([]gateway.TrackInfo, error)
}

type Resolver struct {
	gw   Gateway
	wait time.Duration
}

func New(gw Gateway) *Resolver {
	return &Resolver{gw: gw, wait: 500 * time.Millisecond}
}

// WithWait меняет паузу между регистрацией и повторным опросом.
func (r *Resolver) WithWait(d time.Duration) *Resolver {
	if d > 0 {
		r.wait = d
	}
	return r
}

// Resolve опрашивает шлюз по номеру. Если номер шлюзу ещё не известен,
// регистрирует его (best-effort), ждёт распространения и опрашивает ровно
// один раз повторно. Ничего не сохраняет: персистентность на вызывающем.
func (r *Resolver) Resolve(ctx context.Context, trackNumber, nickname string) (*models.Tracking, error) {
	if trackNumber == "" {
		return nil, ErrEmptyTrackNumber
	}

	infos, err := r.gw.Query(ctx, []string{trackNumber})
	if err != nil {
		return nil, err
	}
	if len(infos) > 0 {
		return buildTracking(infos[0], trackNumber, nickname), nil
	}

	// Ошибку регистрации глотаем: шлюз мог уже знать номер, а повторный
	// опрос ниже всё равно даст окончательный ответ.
	if err := r.gw.Register(ctx, trackNumber); err != nil {
		slog.Warn("register tracking", "track_number", trackNumber, "error", err.Error())
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(r.wait):
	}

	infos, err = r.gw.Query(ctx, []string{trackNumber})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "track number %s", trackNumber)
	}
	return buildTracking(infos[0], trackNumber, nickname), nil
}

func buildTracking(info gateway.TrackInfo, trackNumber, nickname string) *models.Tracking {
	now := time.Now().UTC()

	if nickname == "" {
		nickname = trackNumber
	}

	status := models.NormalizeStatus(info.Status)
	t := &models.Tracking{
		ID:                uuid.NewString(),
		TrackNumber:       trackNumber,
		Nickname:          nickname,
		CarrierCode:       info.CarrierCode,
		CarrierName:       info.CarrierName,
		CarrierLogo:       info.CarrierLogo,
		Status:            status,
		StatusRaw:         info.Status,
		EstimatedDelivery: info.EstimatedDelivery,
		TransitDays:       info.TransitDays,
		NextCheckAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	for _, e := range info.Events {
		evStatus := models.NormalizeStatus(e.SubStatus)
		if evStatus == models.StatusUnknown {
			// Словарь sub-status у шлюза шире словаря статусов;
			// неразобранное значение не пишем как unknown.
			evStatus = status
		}
		t.Events = append(t.Events, &models.TrackingEvent{
			TrackingID: t.ID,
			Status:     evStatus,
			StatusRaw:  e.SubStatus,
			EventTime:  e.EventTime.UTC(),
			Location:   e.Location,
			Message:    e.Message,
		})
	}

	// Храним события старые-первыми.
	sort.SliceStable(t.Events, func(i, j int) bool {
		return t.Events[i].EventTime.Before(t.Events[j].EventTime)
	})

	return t
}
