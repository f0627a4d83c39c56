package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{DefaultATCCallsign}, cfg.ATCCallsigns)
	assert.Equal(t, []string{DefaultListen}, cfg.Listen)
	assert.Equal(t, DefaultKeyFile, cfg.KeyFile)
	assert.Equal(t, DefaultCertFile, cfg.CertFile)
}

func TestParseOverridesDefaults(t *testing.T) {
	input := strings.NewReader(`
# comment
atc/name/one = ATC1
atc/name/two = ATC2
listen/a = 0.0.0.0:9000
listen/b = example.com
keyfile = /etc/cpdlcd/key.pem
certfile = /etc/cpdlcd/cert.pem
cafile = /etc/cpdlcd/ca.pem
blocklist = /etc/cpdlcd/blocklist.txt
`)
	cfg, err := Parse(input, Default())
	require.NoError(t, err)

	assert.Equal(t, []string{"ATC1", "ATC2"}, cfg.ATCCallsigns)
	assert.Equal(t, []string{"0.0.0.0:9000", "example.com:17622"}, cfg.Listen)
	assert.Equal(t, "/etc/cpdlcd/key.pem", cfg.KeyFile)
	assert.Equal(t, "/etc/cpdlcd/cert.pem", cfg.CertFile)
	assert.Equal(t, "/etc/cpdlcd/ca.pem", cfg.CAFile)
	assert.Equal(t, "/etc/cpdlcd/blocklist.txt", cfg.Blocklist)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	input := strings.NewReader("bogus = value\n")
	_, err := Parse(input, Default())
	assert.Error(t, err)
}

func TestParseRejectsMissingEquals(t *testing.T) {
	input := strings.NewReader("not-a-kv-line\n")
	_, err := Parse(input, Default())
	assert.Error(t, err)
}

func TestParseRejectsOverlongCallsign(t *testing.T) {
	input := strings.NewReader("atc/name/x = WAYTOOLONGCALLSIGN\n")
	_, err := Parse(input, Default())
	assert.Error(t, err)
}
