package logging_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/talgya/matchsim/internal/logging"
	"github.com/talgya/matchsim/internal/simerr"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := logging.ParseLevel(tc.in)
			gt.NoError(t, err)
			gt.Equal(t, got, tc.want)
		})
	}

	_, err := logging.ParseLevel("chatty")
	gt.True(t, errors.Is(err, simerr.ErrConfiguration))
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("warn", &buf)
	gt.NoError(t, err)

	logger.Info("round finished", "round", 1)
	gt.Equal(t, buf.Len(), 0)

	logger.Warn("agents eliminated", "count", 3)
	gt.S(t, buf.String()).Contains("agents eliminated")
}

func TestContextCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("debug", &buf)
	gt.NoError(t, err)

	gt.Equal(t, logging.From(context.Background()), logging.Default())

	ctx := logging.With(context.Background(), logger)
	logging.From(ctx).Debug("decisions collected")
	gt.S(t, buf.String()).Contains("decisions collected")
}
