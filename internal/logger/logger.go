package logger

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the per request correlation ID.
const RequestIDHeader = "X-Request-Id"

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

var _ http.RoundTripper = (*HTTPRequests)(nil)

// HTTPRequests is a client transport that tags each request with an ID and
// logs its outcome.
type HTTPRequests struct {
	logger  zerolog.Logger
	next    http.RoundTripper
	headers bool
}

// HTTPRequestsOption configures an HTTPRequests transport.
type HTTPRequestsOption func(*HTTPRequests)

// WithHeaders logs request and response headers. Authorization values are
// redacted.
func WithHeaders() HTTPRequestsOption {
	return func(h *HTTPRequests) {
		h.headers = true
	}
}

func NewHTTPRequests(logger zerolog.Logger, next http.RoundTripper, opts ...HTTPRequestsOption) *HTTPRequests {
	if next == nil {
		next = http.DefaultTransport
	}
	h := &HTTPRequests{logger: logger, next: next}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPRequests) RoundTrip(req *http.Request) (*http.Response, error) {
	started := time.Now()

	requestID := req.Header.Get(RequestIDHeader)
	if requestID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		requestID = id.String()

		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, requestID)
	}

	logger := h.logger.With().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Logger()

	if h.headers {
		logger.Debug().Dict("headers", headerDict(req.Header)).Msg("http request headers")
	}

	resp, err := h.next.RoundTrip(req)
	if err != nil {
		logger.Error().
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("http request")

		return resp, err
	}

	event := logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(started))
	if h.headers {
		event = event.Dict("headers", headerDict(resp.Header))
	}
	event.Msg("http request")

	return resp, nil
}

func headerDict(header http.Header) *zerolog.Event {
	dict := zerolog.Dict()
	for name, values := range header {
		if strings.EqualFold(name, "Authorization") {
			dict = dict.Str(name, "[redacted]")
			continue
		}
		dict = dict.Strs(name, values)
	}
	return dict
}
