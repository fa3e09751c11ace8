package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DB_DRIVER", "DB_LOCK_TIMEOUT", "CORS_ALLOWED_ORIGINS", "APP_LOCALE"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Database.LockTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/storage/uploads", cfg.Storage.PublicPrefix)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("DB_LOCK_TIMEOUT", "750ms")
	t.Setenv("CSRF_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")

	cfg := LoadConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 750*time.Millisecond, cfg.Database.LockTimeout)
	assert.True(t, cfg.Auth.CSRFEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, Username: "u", Password: "p", DBName: "land", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=land sslmode=require", db.GetDSN())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, (&AppConfig{Timezone: "Mars/Olympus"}).Location())
	assert.Equal(t, time.UTC, (&AppConfig{Timezone: "UTC"}).Location())
}
