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

package logging

import (
	"strings"

	"go.uber.org/zap"
)

// Logger and Sugar are no-ops until InitializeWithConfig runs, so tests and
// library code can log unconditionally.
var (
	Logger = zap.NewNop()
	Sugar  = Logger.Sugar()
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "console"
	File   string // optional append-only log file, in addition to stderr
}

// InitializeWithConfig replaces the global logger. Unknown levels fall back
// to info and unknown formats to console.
func InitializeWithConfig(config LogConfig) error {
	zapConfig := zap.NewDevelopmentConfig()
	if strings.EqualFold(config.Format, "json") {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(strings.ToLower(config.Level))
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	// zap opens file sinks in append mode
	if config.File != "" {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, config.File)
		zapConfig.ErrorOutputPaths = append(zapConfig.ErrorOutputPaths, config.File)
	}

	logger, err := zapConfig.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zap.ErrorLevel),
	)
	if err != nil {
		return err
	}

	Logger = logger
	Sugar = logger.Sugar()

	Sugar.Infof("🚀 Structured logging initialized (level: %s, format: %s, file: %q)",
		level.String(), zapConfig.Encoding, config.File)
	return nil
}

// Sync flushes any buffered log entries
func Sync() {
	if Logger != nil {
		// Sync fails on stderr for some platforms; nothing useful to do about it
		_ = Logger.Sync()
	}
}

// Close flushes the logger before exit
func Close() {
	Sync()
}

// tagged prefixes fields with the emitting component and its key attributes
func tagged(component string, fields []zap.Field, attrs ...zap.Field) []zap.Field {
	out := make([]zap.Field, 0, 1+len(attrs)+len(fields))
	out = append(out, zap.String("component", component))
	out = append(out, attrs...)
	return append(out, fields...)
}

// LogPipelineStage logs a translation pipeline stage transition
func LogPipelineStage(sessionID, stage string, fields ...zap.Field) {
	Logger.Info("Pipeline stage", tagged("pipeline", fields,
		zap.String("session_id", sessionID),
		zap.String("stage", stage),
	)...)
}

// LogSessionEvent logs recording session state changes
func LogSessionEvent(sessionID, action string, fields ...zap.Field) {
	Logger.Info("Session event", tagged("session", fields,
		zap.String("session_id", sessionID),
		zap.String("action", action),
	)...)
}

// LogNATSEvent logs NATS messaging events
func LogNATSEvent(subject, action string, fields ...zap.Field) {
	Logger.Info("NATS event", tagged("messaging", fields,
		zap.String("subject", subject),
		zap.String("action", action),
	)...)
}

// LogDatabaseOperation logs events archive operations
func LogDatabaseOperation(operation, table string, fields ...zap.Field) {
	Logger.Info("Database operation", tagged("database", fields,
		zap.String("operation", operation),
		zap.String("table", table),
	)...)
}

// LogTTSOperation logs speech synthesis requests
func LogTTSOperation(operation string, fields ...zap.Field) {
	Logger.Info("TTS operation", tagged("tts", fields, zap.String("operation", operation))...)
}

// LogError logs err at error level
func LogError(err error, message string, fields ...zap.Field) {
	Logger.Error(message, append([]zap.Field{zap.Error(err)}, fields...)...)
}

// LogWarn logs a recoverable problem
func LogWarn(message string, fields ...zap.Field) {
	Logger.Warn(message, fields...)
}
