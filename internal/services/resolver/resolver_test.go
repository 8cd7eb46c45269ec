package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ParcelDeck/internal/integrations/gateway"
	"github.com/BearBump/ParcelDeck/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	registerCalls []string
	registerErr   error

	queryCalls int
	// queryOut[i] — ответ на i-й вызов Query.
	queryOut [][]gateway.TrackInfo
	queryErr error
}

func (f *fakeGateway) Register(ctx context.Context, trackNumber string) error {
	f.registerCalls = append(f.registerCalls, trackNumber)
	return f.registerErr
}

func (f *fakeGateway) Query(ctx context.Context, trackNumbers []string) ([]gateway.TrackInfo, error) {
	defer func() { f.queryCalls++ }()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryCalls < len(f.queryOut) {
		return f.queryOut[f.queryCalls], nil
	}
	return nil, nil
}

func knownInfo() gateway.TrackInfo {
	return gateway.TrackInfo{
		TrackNumber: "RR1",
		CarrierCode: "usps",
		CarrierName: "USPS",
		Status:      "IN_TRANSIT",
		TransitDays: 2,
		Events: []gateway.TrackEvent{
			{EventTime: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC), Location: "NY", Message: "Departed", SubStatus: "IN_TRANSIT"},
			{EventTime: time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), Location: "NY", Message: "Accepted", SubStatus: "INFO_RECEIVED"},
		},
	}
}

func TestResolve_knownNumber_noRegister(t *testing.T) {
	gw := &fakeGateway{queryOut: [][]gateway.TrackInfo{{knownInfo()}}}
	r := New(gw).WithWait(time.Millisecond)

	tr, err := r.Resolve(context.Background(), "RR1", "")
	require.NoError(t, err)
	require.Empty(t, gw.registerCalls)
	require.Equal(t, 1, gw.queryCalls)

	require.NotEmpty(t, tr.ID)
	require.Equal(t, "RR1", tr.TrackNumber)
	require.Equal(t, "RR1", tr.Nickname) // nickname по умолчанию = номер
	require.Equal(t, models.StatusInTransit, tr.Status)
	require.Equal(t, 2, tr.TransitDays)
}

func TestResolve_nicknameOverride(t *testing.T) {
	gw := &fakeGateway{queryOut: [][]gateway.TrackInfo{{knownInfo()}}}
	r := New(gw).WithWait(time.Millisecond)

	tr, err := r.Resolve(context.Background(), "RR1", "Birthday gift")
	require.NoError(t, err)
	require.Equal(t, "Birthday gift", tr.Nickname)
}

func TestResolve_registerThenFound(t *testing.T) {
	gw := &fakeGateway{queryOut: [][]gateway.TrackInfo{nil, {knownInfo()}}}
	r := New(gw).WithWait(time.Millisecond)

	tr, err := r.Resolve(context.Background(), "RR1", "")
	require.NoError(t, err)
	require.Equal(t, []string{"RR1"}, gw.registerCalls)
	require.Equal(t, 2, gw.queryCalls)
	require.Equal(t, models.StatusInTransit, tr.Status)
}

func TestResolve_stillUnknown_notFound(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw).WithWait(time.Millisecond)

	_, err := r.Resolve(context.Background(), "RR1", "")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, gw.queryCalls) // ровно один повторный опрос
}

func TestResolve_registerErrorSwallowed(t *testing.T) {
	gw := &fakeGateway{
		registerErr: &gateway.Error{Code: 429, Message: "too many requests"},
		queryOut:    [][]gateway.TrackInfo{nil, {knownInfo()}},
	}
	r := New(gw).WithWait(time.Millisecond)

	tr, err := r.Resolve(context.Background(), "RR1", "")
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, tr.Status)
}

func TestResolve_queryErrorPropagated(t *testing.T) {
	gwErr := &gateway.Error{Code: 500, Message: "boom"}
	gw := &fakeGateway{queryErr: gwErr}
	r := New(gw).WithWait(time.Millisecond)

	_, err := r.Resolve(context.Background(), "RR1", "")
	var gerr *gateway.Error
	require.True(t, errors.As(err, &gerr))
	require.Empty(t, gw.registerCalls)
}

func TestResolve_emptyNumber(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw)
	_, err := r.Resolve(context.Background(), "", "")
	require.ErrorIs(t, err, ErrEmptyTrackNumber)
	require.Zero(t, gw.queryCalls)
}

func TestResolve_waitCancelled(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw).WithWait(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Resolve(ctx, "RR1", "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildTracking_eventsSortedAndSubStatusFallback(t *testing.T) {
	info := knownInfo()
	info.Events = append(info.Events, gateway.TrackEvent{
		EventTime: time.Date(2026, 8, 3, 7, 0, 0, 0, time.UTC),
		Location:  "NJ",
		Message:   "Customs scan",
		SubStatus: "InTransit_CustomsProcessing",
	})

	tr := buildTracking(info, "RR1", "")
	require.Len(t, tr.Events, 3)
	// старые-первыми
	require.True(t, tr.Events[0].EventTime.Before(tr.Events[1].EventTime))
	require.True(t, tr.Events[1].EventTime.Before(tr.Events[2].EventTime))
	require.Equal(t, models.StatusInfoReceived, tr.Events[0].Status)
	// неразобранный sub-status падает на статус трека, не на unknown
	require.Equal(t, models.StatusInTransit, tr.Events[2].Status)
	require.Equal(t, "InTransit_CustomsProcessing", tr.Events[2].StatusRaw)
}
