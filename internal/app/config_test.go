package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", cfg.OpenAIModel)
	require.Equal(t, 1000, cfg.OpenAIMaxTokens)
	require.Equal(t, "ocr-images", cfg.S3Bucket)
	require.InDelta(t, 0.7, cfg.OCRAutoCreateConfidence, 1e-9)
	require.Empty(t, cfg.OpenAIAPIKey)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsThresholdOutOfRange(t *testing.T) {
	t.Setenv("OCR_AUTO_CREATE_CONFIDENCE", "1.5")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "OCR_AUTO_CREATE_CONFIDENCE")
}

func TestLoadConfigRejectsEmptyBucket(t *testing.T) {
	t.Setenv("S3_BUCKET", "")
	cfg := Config{S3Bucket: "", OpenAIMaxTokens: 1000, OCRStaleAfter: time.Hour}
	require.Error(t, cfg.Validate())
}

func TestLoadConfigRejectsSubMinuteStaleAge(t *testing.T) {
	t.Setenv("OCR_STALE_AFTER", "30s")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "OCR_STALE_AFTER")
}

func TestLoadConfigAcceptsZeroThreshold(t *testing.T) {
	t.Setenv("OCR_AUTO_CREATE_CONFIDENCE", "0")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Zero(t, cfg.OCRAutoCreateConfidence)
}

func TestLogLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, logLevel(&Config{LogLevel: "DEBUG"}))
	require.Equal(t, slog.LevelWarn, logLevel(&Config{LogLevel: "warning"}))
	require.Equal(t, slog.LevelInfo, logLevel(&Config{LogLevel: "verbose"}))
	require.Equal(t, slog.LevelInfo, logLevel(nil))
}
