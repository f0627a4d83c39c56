// Package config parses the daemon configuration file (spec.md §6.2): a
// small bespoke key=value grammar, not a format any general-purpose
// config library in the retrieval pack decodes without a hand-rolled
// shim — see DESIGN.md for why this package is plain standard library
// rather than spf13/viper.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultPort is the daemon's default TCP port (spec.md §6.1).
	DefaultPort = "17622"
	// DefaultListen is used when no listen/ key is present.
	DefaultListen = "localhost:" + DefaultPort
	// DefaultATCCallsign is registered when no atc/name/ key is present.
	DefaultATCCallsign = "TEST"
	// DefaultKeyFile is the TLS private key path used when keyfile is unset.
	DefaultKeyFile = "cpdlcd_key.pem"
	// DefaultCertFile is the TLS certificate path used when certfile is unset.
	DefaultCertFile = "cpdlcd_cert.pem"

	// DefaultQueueMaxBytes is the queued-message byte budget (spec.md §3.3).
	DefaultQueueMaxBytes = 128 * 1024 * 1024
	// DefaultQueueTTLSeconds is the queued-message expiry (spec.md §3.3).
	DefaultQueueTTLSeconds = 3600

	// MaxBufSzNoLogon is the pre-logon input byte budget (spec.md §4.1).
	MaxBufSzNoLogon = 128
	// MaxBufSz is the post-logon input byte budget (spec.md §4.1).
	MaxBufSz = 8192
)

// Config is the parsed, defaulted daemon configuration.
type Config struct {
	ATCCallsigns []string `validate:"required,min=1,dive,max=15"`
	Listen       []string `validate:"required,min=1"`
	KeyFile      string   `validate:"required"`
	CertFile     string   `validate:"required"`
	CAFile       string
	Blocklist    string

	QueueMaxBytes   int64
	QueueTTLSeconds int
}

// Default returns the configuration spec.md §6.2 prescribes when no
// config file is supplied.
func Default() Config {
	return Config{
		ATCCallsigns:    []string{DefaultATCCallsign},
		Listen:          []string{DefaultListen},
		KeyFile:         DefaultKeyFile,
		CertFile:        DefaultCertFile,
		QueueMaxBytes:   DefaultQueueMaxBytes,
		QueueTTLSeconds: DefaultQueueTTLSeconds,
	}
}

// Load reads and parses the config file at path. An empty path returns
// Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f, cfg)
}

// Parse reads key=value lines from r, overlaying them onto base. A
// listen/ or atc/name/ key seen for the first time in the file replaces
// the corresponding default list; subsequent occurrences append.
func Parse(r io.Reader, base Config) (Config, error) {
	cfg := base
	sawListen := false
	sawATC := false

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("config: line %d: missing '=' in %q", lineNo, line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		switch {
		case key == "keyfile":
			cfg.KeyFile = val
		case key == "certfile":
			cfg.CertFile = val
		case key == "cafile":
			cfg.CAFile = val
		case key == "blocklist":
			cfg.Blocklist = val
		case strings.HasPrefix(key, "atc/name/"):
			if !sawATC {
				cfg.ATCCallsigns = nil
				sawATC = true
			}
			cfg.ATCCallsigns = append(cfg.ATCCallsigns, val)
		case strings.HasPrefix(key, "listen/"):
			if !sawListen {
				cfg.Listen = nil
				sawListen = true
			}
			cfg.Listen = append(cfg.Listen, normalizeListen(val))
		default:
			return Config{}, fmt.Errorf("config: line %d: unrecognized key %q", lineNo, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: scan: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeListen appends the default CPDLC port when val names a bare
// host.
func normalizeListen(val string) string {
	if strings.Contains(val, ":") {
		return val
	}
	return val + ":" + DefaultPort
}

var validate = validator.New()

func validateConfig(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}
