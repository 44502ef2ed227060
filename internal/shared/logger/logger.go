package logger

import (
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// GetLogger returns the process-wide zap.Logger instance, the singleton pattern
// keeps every package writing through the same core.
// Console output by default; when LOG_FILE is set the logger also writes JSON
// entries to a size-rotated file.
func GetLogger() *zap.Logger {
	once.Do(func() {
		logFile := os.Getenv("LOG_FILE")
		if logFile == "" {
			var err error
			logger, err = zap.NewDevelopment()
			if err != nil {
				panic("failed logger setup : " + err.Error())
			}
			return
		}

		maxSizeMB := 50
		if v, convErr := strconv.Atoi(os.Getenv("LOG_MAX_SIZE_MB")); convErr == nil && v > 0 {
			maxSizeMB = v
		}
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    maxSizeMB,
			MaxBackups: 5,
			Compress:   true,
		}

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewTee(
			zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), zapcore.InfoLevel),
			zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), zapcore.InfoLevel),
		)
		logger = zap.New(core)
	})
	return logger
}
