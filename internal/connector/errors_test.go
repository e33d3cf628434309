package connector

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arrdeck-go/internal/config"
	"arrdeck-go/internal/connector/types"
)

func TestNormalizeError_Codes(t *testing.T) {
	cfg := svcConfig("s1", config.ServiceSonarr)
	logger := zap.NewNop()

	tests := []struct {
		name       string
		err        error
		statusCode int
		wantCode   string
	}{
		{"deadline exceeded", context.DeadlineExceeded, 0, CodeTimeout},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}, 0, CodeNetwork},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, 0, CodeNetwork},
		{"unauthorized", errors.New("status 401"), 401, CodeUnauthorized},
		{"forbidden", errors.New("status 403"), 403, CodeUnauthorized},
		{"not found", errors.New("status 404"), 404, CodeNotFound},
		{"server error", errors.New("status 502"), 502, CodeServer},
		{"unclassified", errors.New("something odd"), 0, CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeError(tt.err, tt.statusCode, cfg, logger)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.statusCode, got.StatusCode)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestNormalizeError_PassesThroughAPIError(t *testing.T) {
	cfg := svcConfig("s1", config.ServiceSonarr)
	original := &APIError{StatusCode: 404, Code: CodeNotFound, Message: "gone"}

	got := normalizeError(original, 500, cfg, zap.NewNop())
	assert.Same(t, original, got, "already-normalized errors pass through")
}

func TestHealthStatusFor(t *testing.T) {
	assert.Equal(t, types.HealthOffline, HealthStatusFor(&url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}))
	assert.Equal(t, types.HealthOffline, HealthStatusFor(context.DeadlineExceeded))
	assert.Equal(t, types.HealthDegraded, HealthStatusFor(errors.New("bad payload")))
	assert.Equal(t, types.HealthDegraded, HealthStatusFor(&APIError{StatusCode: 500, Code: CodeServer, Message: "boom"}))
}

func TestAPIError_Error(t *testing.T) {
	withStatus := &APIError{StatusCode: 401, Code: CodeUnauthorized, Message: "bad key"}
	assert.Contains(t, withStatus.Error(), "401")
	assert.Contains(t, withStatus.Error(), "bad key")

	withoutStatus := &APIError{Code: CodeNetwork, Message: "refused"}
	assert.NotContains(t, withoutStatus.Error(), "status")
}
