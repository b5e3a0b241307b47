package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initTest(t *testing.T) {
	t.Helper()
	viper.Reset()
	Init()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	initTest(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("UNITWISE_STORE", "memory")
	t.Setenv("UNITWISE_LISTEN_ADDR", ":9090")
	initTest(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ":9090", cfg.ListenAddr)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("UNITWISE_STORE", "postgres")
	initTest(t)

	_, err := Load()
	assert.Error(t, err)
}
