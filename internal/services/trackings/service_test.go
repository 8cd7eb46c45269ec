package trackings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BearBump/ParcelDeck/internal/broker/messages"
	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/BearBump/ParcelDeck/internal/storage/pgstore"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	saved   *models.Tracking
	saveOut *models.Tracking
	saveErr error

	listOut []*models.Tracking
	listErr error

	getOut map[string]*models.Tracking
	getErr error

	deletedID string
	updated   *models.Tracking
	updateErr error
	markedID  string
	markErr   error

	applyUpd pgstore.TrackingUpdate
	applyErr error

	eventsOut []*models.TrackingEvent
}

func (f *fakeRepo) SaveTracking(ctx context.Context, t *models.Tracking) (*models.Tracking, error) {
	f.saved = t
	if f.saveOut != nil {
		return f.saveOut, f.saveErr
	}
	return t, f.saveErr
}
func (f *fakeRepo) ListTrackings(ctx context.Context) ([]*models.Tracking, error) {
	return f.listOut, f.listErr
}
func (f *fakeRepo) GetTrackingByID(ctx context.Context, id string) (*models.Tracking, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut[id], nil
}
func (f *fakeRepo) DeleteTracking(ctx context.Context, id string) error {
	f.deletedID = id
	return nil
}
func (f *fakeRepo) UpdateTracking(ctx context.Context, t *models.Tracking) error {
	f.updated = t
	return f.updateErr
}
func (f *fakeRepo) MarkDue(ctx context.Context, id string) error {
	f.markedID = id
	return f.markErr
}
func (f *fakeRepo) ListTrackingEvents(ctx context.Context, trackingID string, limit, offset int) ([]*models.TrackingEvent, error) {
	return f.eventsOut, nil
}
func (f *fakeRepo) ApplyTrackingUpdate(ctx context.Context, upd pgstore.TrackingUpdate) error {
	f.applyUpd = upd
	return f.applyErr
}

type fakeResolver struct {
	out *models.Tracking
	err error

	gotNumber   string
	gotNickname string
}

func (f *fakeResolver) Resolve(ctx context.Context, trackNumber, nickname string) (*models.Tracking, error) {
	f.gotNumber = trackNumber
	f.gotNickname = nickname
	return f.out, f.err
}

type fakeCarriers struct {
	out   []models.Carrier
	calls int
}

func (f *fakeCarriers) Carriers(ctx context.Context) ([]models.Carrier, error) {
	f.calls++
	return f.out, nil
}

type fakeCache struct {
	m map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.m, key)
	return nil
}

func TestService_AddTracking(t *testing.T) {
	resolved := &models.Tracking{ID: "id-1", TrackNumber: "RR1", Nickname: "RR1", Status: models.StatusInTransit}
	r := &fakeRepo{}
	rs := &fakeResolver{out: resolved}
	s := New(r, rs, nil, nil, 0)

	out, err := s.AddTracking(context.Background(), models.TrackingCreateInput{TrackNumber: "RR1", Nickname: "gift"})
	require.NoError(t, err)
	require.Equal(t, "RR1", rs.gotNumber)
	require.Equal(t, "gift", rs.gotNickname)
	require.Equal(t, resolved, r.saved)
	require.Equal(t, "id-1", out.ID)
}

func TestService_AddTracking_validate(t *testing.T) {
	s := New(&fakeRepo{}, &fakeResolver{}, nil, nil, 0)
	_, err := s.AddTracking(context.Background(), models.TrackingCreateInput{})
	require.Error(t, err)
}

func TestService_AddTracking_resolverErrorPropagated(t *testing.T) {
	want := errors.New("not found")
	s := New(&fakeRepo{}, &fakeResolver{err: want}, nil, nil, 0)
	_, err := s.AddTracking(context.Background(), models.TrackingCreateInput{TrackNumber: "X"})
	require.ErrorIs(t, err, want)
}

func TestService_GetTracking_cacheHit(t *testing.T) {
	r := &fakeRepo{getErr: errors.New("db must not be touched")}
	c := newFakeCache()
	s := New(r, nil, nil, c, 10*time.Minute)

	want := &models.Tracking{ID: "id-7", TrackNumber: "N", Status: models.StatusPending}
	b, _ := json.Marshal(want)
	c.m["tracking:id-7:current"] = b

	out, err := s.GetTracking(context.Background(), "id-7")
	require.NoError(t, err)
	require.Equal(t, "id-7", out.ID)
}

func TestService_GetTracking_missAndAbsent(t *testing.T) {
	r := &fakeRepo{getOut: map[string]*models.Tracking{}}
	s := New(r, nil, nil, newFakeCache(), 10*time.Minute)

	out, err := s.GetTracking(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestService_DeleteTracking_dropsCache(t *testing.T) {
	r := &fakeRepo{}
	c := newFakeCache()
	c.m["tracking:id-1:current"] = []byte("{}")
	s := New(r, nil, nil, c, 10*time.Minute)

	require.NoError(t, s.DeleteTracking(context.Background(), "id-1"))
	require.Equal(t, "id-1", r.deletedID)
	require.NotContains(t, c.m, "tracking:id-1:current")
}

func TestService_RenameTracking(t *testing.T) {
	tr := &models.Tracking{ID: "id-1", TrackNumber: "RR1", Nickname: "RR1"}
	r := &fakeRepo{getOut: map[string]*models.Tracking{"id-1": tr}}
	s := New(r, nil, nil, nil, 0)

	out, err := s.RenameTracking(context.Background(), "id-1", "socks")
	require.NoError(t, err)
	require.Equal(t, "socks", r.updated.Nickname)
	require.Equal(t, "socks", out.Nickname)
}

func TestService_RenameTracking_missing(t *testing.T) {
	r := &fakeRepo{getOut: map[string]*models.Tracking{}}
	s := New(r, nil, nil, nil, 0)

	_, err := s.RenameTracking(context.Background(), "nope", "socks")
	require.ErrorIs(t, err, pgstore.ErrTrackingMissing)
}

func TestService_RefreshTracking(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, nil, nil, 0)

	require.Error(t, s.RefreshTracking(context.Background(), ""))
	require.NoError(t, s.RefreshTracking(context.Background(), "id-9"))
	require.Equal(t, "id-9", r.markedID)
}

func TestService_MonthlyStats_snapshot(t *testing.T) {
	now := time.Now().UTC()
	r := &fakeRepo{listOut: []*models.Tracking{
		{CarrierCode: "A", Status: models.StatusDelivered, CreatedAt: now},
		{CarrierCode: "A", Status: models.StatusInTransit, CreatedAt: now},
	}}
	s := New(r, nil, nil, nil, 0)

	st, err := s.MonthlyStats(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, now.Format("2006-01"), st.Month)
	require.Equal(t, 2, st.TotalPackages)
	require.Equal(t, 1, st.Delivered)
	require.Equal(t, 1, st.InTransit)
}

func TestService_CourierDistribution_emptySnapshot(t *testing.T) {
	s := New(&fakeRepo{}, nil, nil, nil, 0)
	out, err := s.CourierDistribution(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Empty(t, out)
}

func TestService_Carriers_cached(t *testing.T) {
	src := &fakeCarriers{out: []models.Carrier{{Code: "usps", Name: "USPS"}}}
	s := New(&fakeRepo{}, nil, src, newFakeCache(), time.Minute)

	first, err := s.Carriers(context.Background())
	require.NoError(t, err)
	second, err := s.Carriers(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, src.calls) // второй раз из кэша
}

func TestService_ApplyKafkaUpdate_buildsUpdate(t *testing.T) {
	r := &fakeRepo{getOut: map[string]*models.Tracking{"id-1": {ID: "id-1"}}}
	s := New(r, nil, nil, nil, 0)
	now := time.Now().UTC()

	msg := messages.TrackingUpdated{
		TrackingID:  "id-1",
		CheckedAt:   now,
		Status:      models.StatusInTransit,
		StatusRaw:   "IN_TRANSIT",
		TransitDays: 3,
		NextCheckAt: now.Add(10 * time.Minute),
		Events: []messages.TrackingEvent{
			{Status: models.StatusInTransit, StatusRaw: "IN_TRANSIT", EventTime: now},
		},
	}
	require.NoError(t, s.ApplyKafkaUpdate(context.Background(), msg))
	require.Equal(t, "id-1", r.applyUpd.TrackingID)
	require.Equal(t, models.StatusInTransit, r.applyUpd.Status)
	require.Equal(t, 3, r.applyUpd.TransitDays)
	require.Len(t, r.applyUpd.Events, 1)
}

func TestService_ApplyKafkaUpdate_defaults(t *testing.T) {
	r := &fakeRepo{}
	s := New(r, nil, nil, nil, 0)

	require.Error(t, s.ApplyKafkaUpdate(context.Background(), messages.TrackingUpdated{}))

	require.NoError(t, s.ApplyKafkaUpdate(context.Background(), messages.TrackingUpdated{TrackingID: "id-2"}))
	require.False(t, r.applyUpd.CheckedAt.IsZero())
	require.Equal(t, 60*time.Minute, r.applyUpd.NextCheckAt.Sub(r.applyUpd.CheckedAt))
}
