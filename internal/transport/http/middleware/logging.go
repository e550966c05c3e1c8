package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"

	"evalhub/internal/platform/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// NewRequestLogger builds the access logger. Development gets concise text
// lines, everything else JSON.
func NewRequestLogger(env string) *httplog.Logger {
	dev := env == "" || env == "development"
	level := slog.LevelInfo
	if dev {
		level = slog.LevelDebug
	}
	return httplog.NewLogger("evalhub", httplog.Options{
		JSON:             !dev,
		LogLevel:         level,
		Concise:          dev,
		MessageFieldName: "message",
		Tags: map[string]string{
			"env": env,
		},
		QuietDownRoutes: []string{"/healthz", "/readyz"},
		QuietDownPeriod: 10 * time.Second,
	})
}

// Logger logs every request through logger and feeds the collector.
func Logger(logger *httplog.Logger, collector *metrics.Collector) func(http.Handler) http.Handler {
	logRequests := httplog.RequestLogger(logger)
	return func(next http.Handler) http.Handler {
		logged := logRequests(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			logged.ServeHTTP(recorder, r)
			if collector != nil {
				collector.Record(recorder.status, time.Since(start))
			}
		})
	}
}
