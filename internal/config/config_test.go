package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CALL_TIMEOUT_MS", "750")
	t.Setenv("HEDGE_ATTEMPTS", "9")
	t.Setenv("FIRST_QUOTE_TIMEOUT_SEC", "2")
	t.Setenv("PLACE_ATTEMPTS", "not-a-number")
	t.Setenv("SETTLE_ATTEMPTS", "8")
	t.Setenv("CANCEL_SETTLE_MS", "100")

	cfg := Load()
	assert.Equal(t, 750*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, 9, cfg.HedgeAttempts)
	assert.Equal(t, 2*time.Second, cfg.FirstQuoteTimeout)
	assert.Equal(t, 3, cfg.PlaceAttempts)
	assert.Equal(t, 5*time.Second, cfg.RetryMax)
	assert.Equal(t, 3, cfg.CancelAttempts)
	assert.Equal(t, 8, cfg.SettleAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.CancelSettle)
}

func TestParseVenues(t *testing.T) {
	t.Setenv("TEST_HL_KEY", "0xabc")
	v, err := ParseVenues([]byte(`
mexc:
  session_cookie: "u_id=WEB123"
  limits:
    write_per_sec: 5
hyperliquid:
  private_key: ${TEST_HL_KEY}
`))
	require.NoError(t, err)
	assert.Nil(t, v.Aster)
	require.NotNil(t, v.MEXC)
	assert.Equal(t, "u_id=WEB123", v.MEXC.SessionCookie)
	assert.Equal(t, "https://contract.mexc.com", v.MEXC.RESTURL)
	assert.Equal(t, 5.0, v.MEXC.Limits.WritePerSec)
	require.NotNil(t, v.Hyperliquid)
	assert.Equal(t, "0xabc", v.Hyperliquid.PrivateKey)
	assert.Equal(t, []string{"mexc", "hyperliquid"}, v.Names())
}

func TestParseVenues_MissingCredentials(t *testing.T) {
	_, err := ParseVenues([]byte("aster:\n  wallet_address: 0x1\nmexc: {}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aster")
	assert.Contains(t, err.Error(), "mexc")
}

func TestLoadVenues_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venues.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hyperliquid:\n  private_key: k\n"), 0o600))
	v, err := LoadVenues(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://api.hyperliquid.xyz/ws", v.Hyperliquid.WSURL)

	_, err = LoadVenues(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
