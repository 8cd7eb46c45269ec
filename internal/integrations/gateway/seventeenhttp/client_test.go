package seventeenhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ParcelDeck/internal/integrations/gateway"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestClient_Query_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gettrackinfo", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "demo", r.Header.Get("17token"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "code": 0,
  "data": {
    "accepted": [
      {
        "number": "RR123456789CN",
        "carrier": {"code": "china-post", "name": "China Post"},
        "status": "InTransit",
        "sub_status": "InTransit_PickedUp",
        "transit_days": 3,
        "events": [
          {"time": "2026-08-01T10:00:00Z", "location": "Shenzhen", "description": "Accepted", "sub_status": "InfoReceived"},
          {"time": "2026-08-02T08:30:00Z", "location": "Guangzhou", "description": "Departed facility", "sub_status": "InTransit"}
        ]
      }
    ]
  }
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo")
	infos, err := c.Query(context.Background(), []string{"RR123456789CN"})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "RR123456789CN", infos[0].TrackNumber)
	require.Equal(t, "china-post", infos[0].CarrierCode)
	require.Equal(t, "InTransit", infos[0].Status)
	require.Equal(t, 3, infos[0].TransitDays)
	require.Len(t, infos[0].Events, 2)
	require.WithinDuration(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), infos[0].Events[0].EventTime, time.Second)
}

func TestClient_Query_noMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": 0, "data": {"accepted": []}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo")
	infos, err := c.Query(context.Background(), []string{"NOPE"})
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestClient_Query_gatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": 4031, "message": "invalid api key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "bad")
	_, err := c.Query(context.Background(), []string{"X"})
	require.Error(t, err)

	var gerr *gateway.Error
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, 4031, gerr.Code)
	require.Equal(t, "invalid api key", gerr.Message)
}

func TestClient_Register_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": 0}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo")
	require.NoError(t, c.Register(context.Background(), "RR123456789CN"))
}

func TestClient_Carriers_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getcarriers", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code": 0, "data": {"carriers": [{"code": "usps", "name": "USPS"}, {"code": "cdek", "name": "CDEK"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo")
	carriers, err := c.Carriers(context.Background())
	require.NoError(t, err)
	require.Len(t, carriers, 2)
	require.Equal(t, "usps", carriers[0].Code)
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "demo")
	_, err := c.Query(context.Background(), []string{"X"})
	var gerr *gateway.Error
	require.True(t, errors.As(err, &gerr))
	require.Equal(t, http.StatusBadGateway, gerr.Code)
}
