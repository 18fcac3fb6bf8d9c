package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.80, cfg.Verification.VWBA.MinimumConfidence)
	assert.Equal(t, 3, cfg.Verification.ArchiveAttempts)
	assert.Empty(t, cfg.Storage.Bucket)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 9090},
		"storage": {"bucket": "from-file"},
		"verification": {"vwba": {"minimum_confidence": 0.7, "max_uncertainty": 0.3}}
	}`), 0o600))

	t.Setenv("EVIDENCE_S3_BUCKET", "from-env")
	t.Setenv("VERIFICATION_VALIDITY", "720h")
	t.Setenv("VERIFICATION_ARCHIVE_ATTEMPTS", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
	assert.Equal(t, 0.7, cfg.Verification.VWBA.MinimumConfidence)
	assert.Equal(t, 0.3, cfg.Verification.VWBA.MaxUncertainty)
	// fields absent from the file keep their defaults
	assert.Equal(t, 0.10, cfg.Verification.VWBA.DefaultUncertainty)
	assert.Equal(t, 720*time.Hour, cfg.Verification.Validity)
	assert.Equal(t, 5, cfg.Verification.ArchiveAttempts)
}

func TestLoadConfig_InvalidEnv(t *testing.T) {
	t.Setenv("VERIFICATION_VWBA_MIN_CONFIDENCE", "high")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "VERIFICATION_VWBA_MIN_CONFIDENCE")
}

func TestLoadConfig_InvalidPorts(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DATABASE_PORT"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "80a")

			_, err := LoadConfig("")
			assert.ErrorContains(t, err, "invalid "+key)
		})
	}
}

func TestLoadConfig_PortsFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DATABASE_PORT", "6543")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6543, cfg.Database.Port)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":`), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestDatabaseURL(t *testing.T) {
	db := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, DBName: "verify", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/verify?sslmode=disable", db.GetDatabaseURL())
}
