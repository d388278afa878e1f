package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "istruecaller", cfg.ServiceName)
	require.Equal(t, SnapshotBackendMemory, cfg.SnapshotBackend)
	require.Equal(t, MessagingDriverInProcess, cfg.MessagingDriver)
	require.Equal(t, 30*time.Second, cfg.CheckpointInterval)
	require.Equal(t, time.Hour, cfg.DedupPurgeInterval)
	require.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoadRejectsNonPositivePurgeInterval(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DEDUP_PURGE_INTERVAL", "-5m")
	_, err := Load()
	require.ErrorContains(t, err, "DEDUP_PURGE_INTERVAL")
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "istruecaller.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_name: from-file
http_port: "9000"
register_shards: 4
snapshot_backend: file
snapshot_path: /var/lib/istruecaller/register.cbor
checkpoint_interval: 1m
kafka_brokers: ["a:9092", "b:9092"]
enable_vote_ingest: true
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("KAFKA_BROKERS", " c:9092 , ,d:9092")
	t.Setenv("ENABLE_VOTE_INGEST", "off")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-file", cfg.ServiceName)
	require.Equal(t, "9100", cfg.HTTPPort)
	require.Equal(t, 4, cfg.RegisterShards)
	require.Equal(t, SnapshotBackendFile, cfg.SnapshotBackend)
	require.Equal(t, time.Minute, cfg.CheckpointInterval)
	require.Equal(t, []string{"c:9092", "d:9092"}, cfg.KafkaBrokers)
	require.False(t, cfg.EnableVoteIngest)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SNAPSHOT_BACKEND", "etcd")
	_, err := Load()
	require.ErrorContains(t, err, "SNAPSHOT_BACKEND")
}

func TestLoadRequiresDSNForPostgresBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SNAPSHOT_BACKEND", "postgres")
	t.Setenv("POSTGRES_DSN", "")
	_, err := Load()
	require.ErrorContains(t, err, "POSTGRES_DSN")
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("REGISTER_SHARDS", "many")
	t.Setenv("CHECKPOINT_INTERVAL", "soon")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 16, cfg.RegisterShards)
	require.Equal(t, 30*time.Second, cfg.CheckpointInterval)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FLAG_ON", "Yes")
	t.Setenv("FLAG_OFF", "0")
	t.Setenv("FLAG_BAD", "maybe")
	require.True(t, envBool("FLAG_ON", false))
	require.False(t, envBool("FLAG_OFF", true))
	require.True(t, envBool("FLAG_BAD", true))
	require.False(t, envBool("FLAG_UNSET_FOR_TEST", false))
}
