/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the Loqa translator
type Config struct {
	Server      ServerConfig
	STT         STTConfig
	Enhancer    EnhancerConfig
	Translation TranslationConfig
	TTS         TTSConfig
	Security    SecurityConfig
	Session     SessionConfig
	Storage     StorageConfig
	NATS        NATSConfig
	Logging     LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host               string
	Port               int
	GRPCPort           int // 0 disables the gRPC health endpoint
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	RateLimitPerMinute int
}

// STTConfig holds Speech-to-Text service configuration
type STTConfig struct {
	APIKey  string // shared with the enhancer, both run on the same provider
	BaseURL string // OpenAI-compatible API base
	Model   string
	Timeout time.Duration
}

// EnhancerConfig holds terminology enhancement (chat model) configuration
type EnhancerConfig struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// TranslationConfig holds translation service configuration
type TranslationConfig struct {
	URL     string
	Timeout time.Duration
}

// TTSConfig holds Text-to-Speech service configuration
type TTSConfig struct {
	URL     string
	Timeout time.Duration
}

// SecurityConfig holds payload encryption configuration
type SecurityConfig struct {
	EncryptionKey string // empty means a per-process key is generated
}

// SessionConfig holds per-user session configuration
type SessionConfig struct {
	HistoryCapacity int
	IdleTimeout     time.Duration
	TempDir         string
}

// StorageConfig holds the optional translation events archive configuration
type StorageConfig struct {
	EventsDBPath string // empty disables the archive
}

// NATSConfig holds NATS messaging configuration
type NATSConfig struct {
	URL           string // empty disables event publishing
	Subject       string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads an optional .env file, then builds configuration from
// environment variables with defaults
func Load() (*Config, error) {
	// A missing .env is the normal case in containers
	_ = godotenv.Load()

	timeout := getEnvDuration("HTTP_CLIENT_TIMEOUT", 60*time.Second)

	config := &Config{
		Server: ServerConfig{
			Host:               getEnvString("LOQA_HOST", "0.0.0.0"),
			Port:               getEnvInt("LOQA_PORT", 8080),
			GRPCPort:           getEnvInt("LOQA_GRPC_PORT", 0),
			ReadTimeout:        getEnvDuration("LOQA_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvDuration("LOQA_WRITE_TIMEOUT", 120*time.Second),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		},
		STT: STTConfig{
			APIKey:  getEnvString("GROQ_API_KEY", os.Getenv("api_key")),
			BaseURL: getEnvString("STT_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:   getEnvString("STT_MODEL", "whisper-large-v3"),
			Timeout: timeout,
		},
		Enhancer: EnhancerConfig{
			Model:       getEnvString("ENHANCER_MODEL", "llama3-groq-70b-8192-tool-use-preview"),
			Temperature: getEnvFloat32("ENHANCER_TEMPERATURE", 0.3),
			MaxTokens:   getEnvInt("ENHANCER_MAX_TOKENS", 1024),
		},
		Translation: TranslationConfig{
			URL:     getEnvString("TRANSLATE_URL", "https://translate.googleapis.com"),
			Timeout: timeout,
		},
		TTS: TTSConfig{
			URL:     getEnvString("TTS_URL", "https://translate.google.com"),
			Timeout: timeout,
		},
		Security: SecurityConfig{
			EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		},
		Session: SessionConfig{
			HistoryCapacity: getEnvInt("HISTORY_CAPACITY", 50),
			IdleTimeout:     getEnvDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),
			TempDir:         getEnvString("TEMP_DIR", os.TempDir()),
		},
		Storage: StorageConfig{
			EventsDBPath: os.Getenv("EVENTS_DB_PATH"),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			Subject:       getEnvString("NATS_SUBJECT", "loqa.translator.events"),
			MaxReconnect:  getEnvInt("NATS_MAX_RECONNECT", 10),
			ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "console"),
			File:   getEnvString("LOG_FILE", "app.log"),
		},
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive: %d", c.Server.RateLimitPerMinute)
	}

	if c.STT.APIKey == "" {
		return fmt.Errorf("GROQ_API_KEY (or api_key) must be provided")
	}

	if c.STT.BaseURL == "" {
		return fmt.Errorf("STT base URL must be provided")
	}

	if c.Translation.URL == "" {
		return fmt.Errorf("translation URL must be provided")
	}

	if c.TTS.URL == "" {
		return fmt.Errorf("TTS URL must be provided")
	}

	if c.Enhancer.MaxTokens <= 0 {
		return fmt.Errorf("enhancer max tokens must be positive: %d", c.Enhancer.MaxTokens)
	}

	if c.Session.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be positive: %d", c.Session.HistoryCapacity)
	}

	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session idle timeout must be positive: %s", c.Session.IdleTimeout)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatValue)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
