package log

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

func requestID(incoming string) string {
	if incoming != "" {
		return incoming
	}
	return uuid.New().String()
}

func requestLogger(logger zerolog.Logger, reqID, method, path, ip string) zerolog.Logger {
	return logger.With().
		Str(FieldRequestID, reqID).
		Str(FieldMethod, method).
		Str(FieldPath, path).
		Str(FieldClientIP, ip).
		Logger()
}

// completed starts the "request completed" entry: debug for quiet paths,
// error for 5xx, info otherwise.
func completed(l zerolog.Logger, status int, quiet bool, start time.Time) *zerolog.Event {
	evt := l.Info()
	switch {
	case status >= 500:
		evt = l.Error()
	case quiet:
		evt = l.Debug()
	}
	return evt.
		Int(FieldStatus, status).
		Float64(FieldLatency, float64(time.Since(start).Milliseconds()))
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}
