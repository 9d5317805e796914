package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RateLimits are per-second REST budgets. Zero means the adapter default.
type RateLimits struct {
	ReadPerSec  float64 `yaml:"read_per_sec"`
	WritePerSec float64 `yaml:"write_per_sec"`
}

type AsterVenue struct {
	RESTURL       string     `yaml:"rest_url"`
	WSURL         string     `yaml:"ws_url"`
	WalletAddress string     `yaml:"wallet_address"`
	SignerAddress string     `yaml:"signer_address"`
	PrivateKey    string     `yaml:"private_key"`
	Limits        RateLimits `yaml:"limits"`
}

type MEXCVenue struct {
	RESTURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
	// SessionCookie authenticates the web order endpoints.
	SessionCookie string `yaml:"session_cookie"`
	// APIKey/APISecret log in to the personal order stream.
	APIKey    string     `yaml:"api_key"`
	APISecret string     `yaml:"api_secret"`
	Limits    RateLimits `yaml:"limits"`
}

type HyperliquidVenue struct {
	RESTURL    string     `yaml:"rest_url"`
	WSURL      string     `yaml:"ws_url"`
	PrivateKey string     `yaml:"private_key"`
	Limits     RateLimits `yaml:"limits"`
}

// Venues holds every configured venue. A nil entry is not configured.
type Venues struct {
	Aster       *AsterVenue       `yaml:"aster"`
	MEXC        *MEXCVenue        `yaml:"mexc"`
	Hyperliquid *HyperliquidVenue `yaml:"hyperliquid"`
}

// LoadVenues reads the venue file. ${VAR} references are expanded from the
// environment so secrets can stay in .env.
func LoadVenues(path string) (Venues, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Venues{}, fmt.Errorf("read venues: %w", err)
	}
	return ParseVenues(data)
}

func ParseVenues(data []byte) (Venues, error) {
	var v Venues
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &v); err != nil {
		return Venues{}, fmt.Errorf("parse venues: %w", err)
	}
	v.applyDefaults()
	if err := v.Validate(); err != nil {
		return Venues{}, err
	}
	return v, nil
}

func (v *Venues) applyDefaults() {
	if a := v.Aster; a != nil {
		a.RESTURL = orDefault(a.RESTURL, "https://fapi.asterdex.com")
		a.WSURL = orDefault(a.WSURL, "wss://fstream.asterdex.com")
	}
	if m := v.MEXC; m != nil {
		m.RESTURL = orDefault(m.RESTURL, "https://contract.mexc.com")
		m.WSURL = orDefault(m.WSURL, "wss://contract.mexc.com/edge")
	}
	if h := v.Hyperliquid; h != nil {
		h.RESTURL = orDefault(h.RESTURL, "https://api.hyperliquid.xyz")
		h.WSURL = orDefault(h.WSURL, "wss://api.hyperliquid.xyz/ws")
	}
}

func (v Venues) Validate() error {
	var errs []error
	if a := v.Aster; a != nil {
		if a.WalletAddress == "" || a.SignerAddress == "" || a.PrivateKey == "" {
			errs = append(errs, errors.New("aster: wallet_address, signer_address and private_key are required"))
		}
	}
	if m := v.MEXC; m != nil && m.SessionCookie == "" {
		errs = append(errs, errors.New("mexc: session_cookie is required"))
	}
	if h := v.Hyperliquid; h != nil && h.PrivateKey == "" {
		errs = append(errs, errors.New("hyperliquid: private_key is required"))
	}
	return errors.Join(errs...)
}

// Names lists configured venues.
func (v Venues) Names() []string {
	var out []string
	if v.Aster != nil {
		out = append(out, "aster")
	}
	if v.MEXC != nil {
		out = append(out, "mexc")
	}
	if v.Hyperliquid != nil {
		out = append(out, "hyperliquid")
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
