package logging_test

import (
	"bytes"
	"context"
	"testing"

	"awakener/pkg/utils/logging"

	"github.com/m-mizutani/gt"
)

func TestLevelFiltering(t *testing.T) {
	testCases := map[string]struct {
		level string
		want  []string
		drop  []string
	}{
		"debug passes everything": {
			level: "debug",
			want:  []string{"d-msg", "i-msg", "w-msg", "e-msg"},
		},
		"info drops debug": {
			level: "info",
			want:  []string{"i-msg", "w-msg", "e-msg"},
			drop:  []string{"d-msg"},
		},
		"warning alias works": {
			level: "warning",
			want:  []string{"w-msg", "e-msg"},
			drop:  []string{"d-msg", "i-msg"},
		},
		"error only": {
			level: "error",
			want:  []string{"e-msg"},
			drop:  []string{"d-msg", "i-msg", "w-msg"},
		},
		"levels are case insensitive": {
			level: "WARN",
			want:  []string{"w-msg"},
			drop:  []string{"i-msg"},
		},
		"unknown level falls back to info": {
			level: "loud",
			want:  []string{"i-msg"},
			drop:  []string{"d-msg"},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)

			logger.Debug("d-msg")
			logger.Info("i-msg")
			logger.Warn("w-msg")
			logger.Error("e-msg")

			out := buf.String()
			for _, msg := range tc.want {
				gt.S(t, out).Contains(msg)
			}
			for _, msg := range tc.drop {
				gt.S(t, out).NotContains(msg)
			}
		})
	}
}

func TestContextRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf).With("round", 42)

	ctx := logging.With(context.Background(), logger)
	gt.Equal(t, logging.From(ctx), logger)

	logging.From(ctx).Info("woke up")
	out := buf.String()
	gt.S(t, out).Contains("woke up")
	gt.S(t, out).Contains("42")
}

func TestFromFallsBackToDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	logging.SetDefault(logging.New("info", buf))

	logger := logging.From(context.Background())
	gt.Equal(t, logger, logging.Default())

	logger.Info("no context logger")
	gt.S(t, buf.String()).Contains("no context logger")
}

func TestNilWriterDoesNotPanic(t *testing.T) {
	logger := logging.New("info", nil)
	gt.V(t, logger).NotNil()
	logger.Info("writes to stderr")
}
