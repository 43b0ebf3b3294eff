package logger

import (
	"fmt"
	"os"

	"wabot/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init builds the process logger from configuration and installs it as the zap global,
// so packages log through zap.L() / zap.S().
func Init(cfg config.Configuration) (*zap.Logger, error) {
	var zapConfig zap.Config
	if cfg.LogMode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	var log *zap.Logger
	if cfg.LogPath != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(rotating),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		log = zap.New(core, zap.AddCaller())
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
		log, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return nil, err
		}
	}

	zap.ReplaceGlobals(log)
	return log, nil
}

// GormLogger routes jinzhu/gorm SQL logging through zap at debug level.
type GormLogger struct {
	log *zap.SugaredLogger
}

func NewGormLogger() GormLogger {
	return GormLogger{log: zap.S().Named("gorm")}
}

// Print satisfies gorm's logger interface.
func (g GormLogger) Print(values ...interface{}) {
	if len(values) > 1 && values[0] == "sql" {
		// values: "sql", source, duration, query, vars, rows
		if len(values) >= 6 {
			g.log.Debugw("query", "source", values[1], "duration", values[2], "sql", values[3], "vars", values[4], "rows", values[5])
			return
		}
	}
	g.log.Debug(values...)
}
