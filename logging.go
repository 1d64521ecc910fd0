package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AppLogger wraps a zap logger with the extended diagnostics switches.
type AppLogger struct {
	*zap.Logger
	logWS bool
	debug bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	JSON  bool
	LogWS bool
	Debug bool
}

// NewAppLogger creates a new application logger
func NewAppLogger(config LogConfig) (*AppLogger, error) {
	var zcfg zap.Config
	if config.JSON {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if config.Debug {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return &AppLogger{Logger: logger, logWS: config.LogWS, debug: config.Debug}, nil
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *AppLogger {
	return &AppLogger{Logger: zap.NewNop()}
}

// Room returns a child logger tagged with the room code.
func (al *AppLogger) Room(code string) *AppLogger {
	return &AppLogger{Logger: al.With(zap.String("room", code)), logWS: al.logWS, debug: al.debug}
}

// LogWS logs a websocket frame when websocket logging is enabled.
func (al *AppLogger) LogWS(direction, session string, message []byte) {
	if !al.logWS {
		return
	}
	al.Info("ws",
		zap.String("dir", direction),
		zap.String("session", session),
		zap.ByteString("msg", message),
	)
}

// IsEnabled returns true if any extended logging is enabled
func (al *AppLogger) IsEnabled() bool {
	return al.logWS || al.debug
}
