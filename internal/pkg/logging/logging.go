// Package logging builds the tracker's zap logger: console output for
// interactive runs, rotated JSON files for daemons.
package logging

import (
	"fmt"

	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func New(cfg config.LogConfig) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("unknown log level %q: %w", cfg.Level, err)
		}
	}

	if cfg.File == "" {
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
		return zcfg.Build()
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), writer, lvl)
	return zap.New(core), nil
}
