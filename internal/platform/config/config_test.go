package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "dev", cfg.AuthMode)
	assert.Equal(t, 24, cfg.DefaultTimeWindowHours)
	assert.Equal(t, 720, cfg.MaxTimeWindowHours)
	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.SweepInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "Postgres")
	t.Setenv("DB_DSN", "postgres://localhost/access")
	t.Setenv("SWEEP_INTERVAL", "1m")
	t.Setenv("ALLOW_ALL_MEMBERSHIPS", "true")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, "postgres", cfg.StorageBackend)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.AllowAllMemberships)
}

func TestValidate_Rejects(t *testing.T) {
	base := func() Config {
		return Config{
			Env:                    "development",
			StorageBackend:         "memory",
			AuthMode:               "dev",
			DefaultTimeWindowHours: 24,
			MaxTimeWindowHours:     720,
		}
	}

	cases := map[string]func(c *Config){
		"postgres sin dsn":      func(c *Config) { c.StorageBackend = "postgres" },
		"mongo sin uri":         func(c *Config) { c.StorageBackend = "mongo" },
		"backend desconocido":   func(c *Config) { c.StorageBackend = "sqlite" },
		"dev fuera de develop":  func(c *Config) { c.Env = "production" },
		"jwt sin secret":        func(c *Config) { c.AuthMode = "jwt" },
		"introspect sin url":    func(c *Config) { c.AuthMode = "introspect" },
		"ventana default cero":  func(c *Config) { c.DefaultTimeWindowHours = 0 },
		"max menor que default": func(c *Config) { c.MaxTimeWindowHours = 12 },
		"sweep negativo":        func(c *Config) { c.SweepInterval = -time.Second },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	ok := base()
	assert.NoError(t, ok.Validate())
}
