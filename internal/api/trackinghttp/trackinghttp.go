package trackinghttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/ParcelDeck/internal/integrations/gateway"
	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/BearBump/ParcelDeck/internal/services/analytics"
	"github.com/BearBump/ParcelDeck/internal/services/resolver"
	"github.com/BearBump/ParcelDeck/internal/services/trackings"
	"github.com/BearBump/ParcelDeck/internal/storage/pgstore"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Service interface {
	AddTracking(ctx context.Context, in models.TrackingCreateInput) (*models.Tracking, error)
	ListTrackings(ctx context.Context) ([]*models.Tracking, error)
	GetTracking(ctx context.Context, id string) (*models.Tracking, error)
	DeleteTracking(ctx context.Context, id string) error
	RenameTracking(ctx context.Context, id, nickname string) (*models.Tracking, error)
	RefreshTracking(ctx context.Context, id string) error
	ListTrackingEvents(ctx context.Context, trackingID string, limit, offset int) ([]*models.TrackingEvent, error)
	MonthlyStats(ctx context.Context, month time.Time) (analytics.MonthlyStats, error)
	CourierDistribution(ctx context.Context) ([]analytics.CourierStat, error)
	Carriers(ctx context.Context) ([]models.Carrier, error)
}

type API struct {
	svc Service
}

func New(svc Service) *API {
	return &API{svc: svc}
}

// Routes собирает маршруты API под /v1 плюс healthz.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/trackings", a.addTracking)
		r.Get("/trackings", a.listTrackings)
		r.Get("/trackings/{id}", a.getTracking)
		r.Patch("/trackings/{id}", a.renameTracking)
		r.Delete("/trackings/{id}", a.deleteTracking)
		r.Post("/trackings/{id}/refresh", a.refreshTracking)
		r.Get("/trackings/{id}/events", a.listEvents)

		r.Get("/analytics/monthly", a.monthlyStats)
		r.Get("/analytics/couriers", a.courierDistribution)

		r.Get("/carriers", a.listCarriers)
	})
}

type addTrackingRequest struct {
	TrackNumber string `json:"trackNumber"`
	Nickname    string `json:"nickname"`
}

func (a *API) addTracking(w http.ResponseWriter, r *http.Request) {
	var req addTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.TrackNumber == "" {
		writeError(w, http.StatusBadRequest, "trackNumber is required")
		return
	}

	t, err := a.svc.AddTracking(r.Context(), models.TrackingCreateInput{
		TrackNumber: req.TrackNumber,
		Nickname:    req.Nickname,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trackingToDTO(t))
}

func (a *API) listTrackings(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListTrackings(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]trackingDTO, 0, len(items))
	for _, t := range items {
		out = append(out, trackingToDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := a.svc.GetTracking(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "tracking not found")
		return
	}
	writeJSON(w, http.StatusOK, trackingToDTO(t))
}

type renameTrackingRequest struct {
	Nickname string `json:"nickname"`
}

func (a *API) renameTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Nickname == "" {
		writeError(w, http.StatusBadRequest, "nickname is required")
		return
	}

	t, err := a.svc.RenameTracking(r.Context(), id, req.Nickname)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackingToDTO(t))
}

func (a *API) deleteTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.DeleteTracking(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) refreshTracking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.svc.RefreshTracking(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": true})
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	events, err := a.svc.ListTrackingEvents(r.Context(), id, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, eventToDTO(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) monthlyStats(w http.ResponseWriter, r *http.Request) {
	var month time.Time
	if raw := r.URL.Query().Get("month"); raw != "" {
		m, err := time.Parse("2006-01", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		month = m
	}

	stats, err := a.svc.MonthlyStats(r.Context(), month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) courierDistribution(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.CourierDistribution(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) listCarriers(w http.ResponseWriter, r *http.Request) {
	carriers, err := a.svc.Carriers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]carrierDTO, 0, len(carriers))
	for _, c := range carriers {
		out = append(out, carrierDTO{Code: c.Code, Name: c.Name, Logo: c.Logo})
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeServiceError переводит ошибки слоя сервисов в HTTP-коды.
func writeServiceError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pgstore.ErrTrackingMissing):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, trackings.ErrInvalidInput), errors.Is(err, resolver.ErrEmptyTrackNumber):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("internal error", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
