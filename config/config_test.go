package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  tracking_updated_topic_name: "tracking.updated"
redis:
  host: "localhost"
  port: 6379
parceldeck:
  http_addr: ":8080"
  kafka_consumer_group: "parcel-api"
  current_status_ttl_seconds: 600
  gateway_api_key: "secret"
  resolve_wait_millis: 500
  worker_carrier_rate_limits:
    cdek: 30
    cainiao: 60
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "tracking.updated", cfg.Kafka.TrackingUpdatedTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.ParcelDeck.HTTPAddr)
	require.Equal(t, "secret", cfg.ParcelDeck.GatewayAPIKey)
	require.Equal(t, 500, cfg.ParcelDeck.ResolveWaitMillis)
	require.Equal(t, int64(30), cfg.ParcelDeck.WorkerCarrierRateLimits["cdek"])
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
