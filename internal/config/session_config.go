package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

const defaultIdleTimeout = 30 * time.Second

type SessionConfig interface {
	GetIdleTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetIdleTimeout falls back to 30s when IDLE_TIMEOUT is unset or not a positive duration.
func (Session) GetIdleTimeout() time.Duration {
	raw := GetEnv("IDLE_TIMEOUT", "")
	if raw == "" {
		return defaultIdleTimeout
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Warn().Str("value", raw).Msg("invalid IDLE_TIMEOUT, using default")
		return defaultIdleTimeout
	}
	return d
}
