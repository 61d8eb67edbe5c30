// Package config provides environment configuration for the avatar binaries.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Defaults used when the corresponding variable is unset.
const (
	DefaultPort      = "3000"
	DefaultBrokerURL = "http://localhost:3000"
	DefaultVoice     = "ash"
)

// Load reads a .env file if one is present. Missing files are not an error;
// real environment variables always win over .env entries.
func Load() {
	_ = godotenv.Load()
}

// OpenAIKey returns the upstream API key from OPENAI_API_KEY.
// Returns an error rather than exiting so callers can decide how to fail.
func OpenAIKey() (string, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return "", fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}
	return key, nil
}

// RealtimeModel returns the pinned model id from REALTIME_MODEL, or empty
// to let the broker pick one.
func RealtimeModel() string {
	return os.Getenv("REALTIME_MODEL")
}

// Port returns the listening port from PORT or the default.
func Port() string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return DefaultPort
}

// BrokerURL returns the broker base URL the client talks to.
func BrokerURL() string {
	if u := os.Getenv("BROKER_URL"); u != "" {
		return u
	}
	return DefaultBrokerURL
}

// Voice returns the output voice id from VOICE or the default.
func Voice() string {
	if v := os.Getenv("VOICE"); v != "" {
		return v
	}
	return DefaultVoice
}

// LogLevel returns the log level from LOG_LEVEL ("debug", "info", "warn", "error").
func LogLevel() string {
	if l := os.Getenv("LOG_LEVEL"); l != "" {
		return l
	}
	return "info"
}

// AudioBackend returns the capture/playback backend from AUDIO_BACKEND
// ("cmd" or "mock"). Empty means the package default.
func AudioBackend() string {
	return os.Getenv("AUDIO_BACKEND")
}

// AudioDevice returns the capture device identifier from AUDIO_DEVICE.
func AudioDevice() string {
	return os.Getenv("AUDIO_DEVICE")
}
