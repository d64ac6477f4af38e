package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SIGNUP_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "s3cret", cfg.SignupSecret)
	require.Empty(t, cfg.LegacySalt)
	require.Equal(t, 30*time.Minute, cfg.ConfirmGrace)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SIGNUP_SECRET", "s3cret")
	t.Setenv("CONFIRM_GRACE", "10m")
	t.Setenv("DB_NAME", "signupd_test")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 10*time.Minute, cfg.ConfirmGrace)
	require.Contains(t, cfg.DB.DSN(), "dbname=signupd_test")
}

func TestDSN(t *testing.T) {
	d := Database{
		Host: "db", Port: "5433", User: "u", Password: "p",
		Name: "signupd", SSLMode: "require",
	}
	require.Equal(t,
		"host=db port=5433 user=u password=p dbname=signupd sslmode=require",
		d.DSN())
}
