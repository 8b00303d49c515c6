package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
	"fastsearch-cache/internal/common/utils"
	"fastsearch-cache/internal/health"
)

// maxBodyBytes bounds request bodies of the cache API.
const maxBodyBytes = 8 << 20

type Handlers struct {
	cache  *cache.Cache
	health *health.Reporter
	logger logging.Logger
}

func New(c *cache.Cache, reporter *health.Reporter) *Handlers {
	return &Handlers{
		cache:  c,
		health: reporter,
		logger: logging.Component("handlers"),
	}
}

// Duration accepts a Go duration string ("90s", "1h", "2d") or a number of
// seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*d = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := utils.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", raw)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return errors.ValidationError(fmt.Sprintf("Invalid JSON: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps an application error to its HTTP status.
func statusFor(err error) int {
	switch errors.GetType(err) {
	case errors.ErrTypeValidation:
		return http.StatusBadRequest
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeLock:
		return http.StatusConflict
	case errors.ErrTypeConfig, errors.ErrTypeStorage, errors.ErrTypeConnection:
		return http.StatusServiceUnavailable
	case errors.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrTypeCorrupted:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("Cache API request failed", err,
			logging.Field{Key: "path", Value: r.URL.Path})
	}
	http.Error(w, message, status)
}
