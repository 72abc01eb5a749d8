// Package logging builds the per-run orchestrator logger: structured
// JSON lines appended to one file per run, mirrored to stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewRunLogger creates a zap logger writing to a fresh append-only log
// file under dir, named after the run ID. Returns the logger and the
// log file path.
func NewRunLogger(dir, runID string) (*zap.Logger, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("creating log dir: %w", err)
	}

	name := fmt.Sprintf("run-%s-%s.log", time.Now().Format("20060102-150405"), runID)
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("opening run log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(file),
		zap.InfoLevel,
	)
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		zap.InfoLevel,
	)

	logger := zap.New(zapcore.NewTee(fileCore, consoleCore)).
		With(zap.String("run_id", runID))
	return logger, path, nil
}
