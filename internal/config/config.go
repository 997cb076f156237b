// Package config loads pnmtrack settings from a YAML file and the environment.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pnmtrack/internal/flow"
	"github.com/roach88/pnmtrack/internal/gateway"
	"github.com/roach88/pnmtrack/internal/photo"
)

// Environment variables that override file settings.
const (
	EnvGatewayURL = "PNMTRACK_GATEWAY_URL"
	EnvScriptURL  = "GOOGLE_SCRIPT_URL"
	EnvDB         = "PNMTRACK_DB"
)

//go:embed schema.cue
var schemaSource string

// Config is the root configuration.
type Config struct {
	DB      string        `yaml:"db"`
	Gateway GatewayConfig `yaml:"gateway"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	CheckIn CheckInConfig `yaml:"checkin"`
	Photo   PhotoConfig   `yaml:"photo"`
}

// GatewayConfig describes where submissions are sent.
type GatewayConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProxyConfig describes the proxy server.
type ProxyConfig struct {
	Addr      string `yaml:"addr"`
	ScriptURL string `yaml:"script_url"`
}

// CheckInConfig describes the kiosk.
type CheckInConfig struct {
	Events     []string      `yaml:"events"`
	AutoReturn time.Duration `yaml:"auto_return"`
}

// PhotoConfig describes headshot normalization limits.
type PhotoConfig struct {
	MaxDimension int `yaml:"max_dimension"`
	MaxBytes     int `yaml:"max_bytes"`
	Quality      int `yaml:"quality"`
}

// Defaults returns a Config with default values.
func Defaults() *Config {
	return &Config{
		DB: "pnmtrack.db",
		Gateway: GatewayConfig{
			URL:     "http://localhost:8080/api/proxy",
			Timeout: gateway.DefaultTimeout,
		},
		Proxy: ProxyConfig{
			Addr: ":8080",
		},
		CheckIn: CheckInConfig{
			Events:     slices.Clone(flow.DefaultEvents),
			AutoReturn: flow.DefaultAutoReturn,
		},
		Photo: PhotoConfig{
			MaxDimension: photo.DefaultMaxDimension,
			MaxBytes:     photo.DefaultMaxBytes,
			Quality:      photo.DefaultQuality,
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides, and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvGatewayURL); v != "" {
		cfg.Gateway.URL = v
	}
	if v := os.Getenv(EnvScriptURL); v != "" {
		cfg.Proxy.ScriptURL = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		cfg.DB = v
	}
}

// validationView is the shape checked against the CUE schema.
type validationView struct {
	DB      string `json:"db"`
	Gateway struct {
		URL       string `json:"url"`
		TimeoutMS int64  `json:"timeout_ms"`
	} `json:"gateway"`
	Proxy struct {
		Addr      string `json:"addr"`
		ScriptURL string `json:"script_url"`
	} `json:"proxy"`
	CheckIn struct {
		Events       []string `json:"events"`
		AutoReturnMS int64    `json:"auto_return_ms"`
	} `json:"checkin"`
	Photo struct {
		MaxDimension int `json:"max_dimension"`
		MaxBytes     int `json:"max_bytes"`
		Quality      int `json:"quality"`
	} `json:"photo"`
}

func (c *Config) view() validationView {
	var v validationView
	v.DB = c.DB
	v.Gateway.URL = c.Gateway.URL
	v.Gateway.TimeoutMS = c.Gateway.Timeout.Milliseconds()
	v.Proxy.Addr = c.Proxy.Addr
	v.Proxy.ScriptURL = c.Proxy.ScriptURL
	v.CheckIn.Events = c.CheckIn.Events
	if v.CheckIn.Events == nil {
		v.CheckIn.Events = []string{}
	}
	v.CheckIn.AutoReturnMS = c.CheckIn.AutoReturn.Milliseconds()
	v.Photo.MaxDimension = c.Photo.MaxDimension
	v.Photo.MaxBytes = c.Photo.MaxBytes
	v.Photo.Quality = c.Photo.Quality
	return v
}

// Validate checks the configuration against the embedded schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(c.view()))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range cueerrors.Errors(err) {
			msgs = append(msgs, strings.TrimSpace(cueerrors.Details(e, nil)))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

// PhotoSettings returns the photo package configuration.
func (c *Config) PhotoSettings() photo.Config {
	return photo.Config{
		MaxDimension: c.Photo.MaxDimension,
		MaxBytes:     c.Photo.MaxBytes,
		Quality:      c.Photo.Quality,
	}
}

// CheckInSettings returns the flow configuration for the kiosk.
func (c *Config) CheckInSettings() flow.CheckInConfig {
	return flow.CheckInConfig{
		Events:     slices.Clone(c.CheckIn.Events),
		AutoReturn: c.CheckIn.AutoReturn,
	}
}
