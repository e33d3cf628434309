package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
)

// ErrUnsupportedServiceType is returned by the factory for unknown type tags.
var ErrUnsupportedServiceType = errors.New("unsupported service type")

// ErrAuthenticationFailed wraps authentication failures from the auth gate.
var ErrAuthenticationFailed = errors.New("authentication failed")

// APIError is the normalized form every transport-level failure is reduced
// to before it propagates out of a connector.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("api error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error (code %s): %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *APIError) Unwrap() error {
	return e.Err
}

// Error codes produced by normalizeError.
const (
	CodeNetwork      = "network"
	CodeTimeout      = "timeout"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeServer       = "server_error"
	CodeUnknown      = "unknown"
)

// normalizeError reduces any thrown value to an APIError, logging it with
// service context. Already-normalized errors pass through untouched.
func normalizeError(err error, statusCode int, cfg *config.ServiceConfig, logger *zap.Logger) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	code := CodeUnknown
	switch {
	case isTimeoutError(err):
		code = CodeTimeout
	case isNetworkError(err):
		code = CodeNetwork
	case statusCode == 401 || statusCode == 403:
		code = CodeUnauthorized
	case statusCode == 404:
		code = CodeNotFound
	case statusCode >= 500:
		code = CodeServer
	}

	normalized := &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    err.Error(),
		Err:        err,
	}

	logger.Warn("API error",
		zap.String("service_id", cfg.ID),
		zap.String("service_type", string(cfg.Type)),
		zap.Int("status", statusCode),
		zap.String("code", code),
		zap.Error(err))

	return normalized
}

// HealthStatusFor maps an error to the health status it implies: network and
// timeout failures mean offline, anything else degraded.
func HealthStatusFor(err error) types.HealthStatus {
	if isNetworkError(err) || isTimeoutError(err) {
		return types.HealthOffline
	}
	return types.HealthDegraded
}

// isNetworkError reports whether err is a transport-level failure (DNS,
// connection refused, unreachable). These map to offline health status.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// isTimeoutError reports whether err is a deadline or timeout failure.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
