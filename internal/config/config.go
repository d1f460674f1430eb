// Package config loads the gateway's environment configuration: the
// encryption key, the global fallback Kiro identity, outbound proxy
// settings, and the health-check interval. Like the teacher's own
// cmd/server bootstrap, an optional .env file is loaded first via
// godotenv, then real environment variables take precedence.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/riftgate/anthropic-gateway/internal/gatewayerrors"
)

// SupportedRegions is the allow-list from spec.md §6.
var SupportedRegions = map[string]bool{
	"us-east-1":      true,
	"ap-southeast-1": true,
	"eu-west-1":      true,
}

// Config holds the process-wide environment configuration.
type Config struct {
	// TokenEncryptKey seeds the crypto.Box used for at-rest secrets.
	TokenEncryptKey string
	// Production gates the refusal of a default/empty encryption key.
	Production bool

	// GlobalFallback is the identity used when no per-user credential is
	// configured; optional.
	GlobalFallback *FallbackIdentity

	HTTPProxy   string
	SOCKS5Proxy string

	HealthCheckInterval int // seconds
}

// FallbackIdentity mirrors the REFRESH_TOKEN/CLIENT_ID/CLIENT_SECRET/
// REGION/PROFILE_ARN global fallback env vars from spec.md §6.
type FallbackIdentity struct {
	RefreshToken string
	ClientID     string
	ClientSecret string
	Region       string
	ProfileARN   string
}

// Load reads .env (if present) then the recognized environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TokenEncryptKey:     os.Getenv("TOKEN_ENCRYPT_KEY"),
		Production:          strings.EqualFold(os.Getenv("PRODUCTION"), "true"),
		HTTPProxy:           os.Getenv("HTTP_PROXY"),
		SOCKS5Proxy:         os.Getenv("SOCKS5_PROXY"),
		HealthCheckInterval: 300,
	}

	if raw := os.Getenv("HEALTH_CHECK_INTERVAL"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &gatewayerrors.ConfigError{Message: "HEALTH_CHECK_INTERVAL must be an integer: " + err.Error()}
		}
		cfg.HealthCheckInterval = n
	}

	const devDefaultEncryptKey = "dev-only-insecure-default-key"
	if cfg.Production && (cfg.TokenEncryptKey == "" || cfg.TokenEncryptKey == devDefaultEncryptKey) {
		return nil, &gatewayerrors.ConfigError{Message: "TOKEN_ENCRYPT_KEY must be set to a non-default value in production"}
	}
	if cfg.TokenEncryptKey == "" {
		cfg.TokenEncryptKey = devDefaultEncryptKey
	}

	if refresh := os.Getenv("REFRESH_TOKEN"); refresh != "" {
		region := os.Getenv("REGION")
		if region == "" {
			region = "us-east-1"
		}
		if !SupportedRegions[region] {
			return nil, &gatewayerrors.ConfigError{Message: "unsupported REGION: " + region}
		}
		cfg.GlobalFallback = &FallbackIdentity{
			RefreshToken: refresh,
			ClientID:     os.Getenv("CLIENT_ID"),
			ClientSecret: os.Getenv("CLIENT_SECRET"),
			Region:       region,
			ProfileARN:   os.Getenv("PROFILE_ARN"),
		}
	}

	return cfg, nil
}
