package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		message  string
		expected ErrorKind
	}{
		{"validation failed for field service_code", KindValidation},
		{"database is locked", KindDatabase},
		{"pq: sql syntax error", KindDatabase},
		{"network unreachable", KindNetwork},
		{"connection refused", KindNetwork},
		{"request timeout after 30s", KindTimeout},
		{"rate limit exceeded, retry after 20", KindRateLimit},
		{"auth token expired", KindAuthentication},
		{"permission denied", KindAuthentication},
		{"zone not found", KindNotFound},
		{"something odd happened", KindSystem},
		// first matching rule wins
		{"validation timeout", KindValidation},
		{"database connection lost", KindDatabase},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyMessage(tt.message))
		})
	}
}

func TestClassify_TypedErrorsBypassSubstrings(t *testing.T) {
	// message mentions "database" but the typed kind wins
	err := NewProcessingError(fmt.Errorf("database of prompts unavailable"))
	assert.Equal(t, KindProcessing, Classify(err))

	wrapped := fmt.Errorf("turn failed: %w", NewRateLimitError("genai", 20*time.Second, nil))
	assert.Equal(t, KindRateLimit, Classify(wrapped))

	assert.Equal(t, KindTimeout, Classify(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.Equal(t, ErrorKind(""), Classify(nil))
	assert.Equal(t, KindSystem, KindOf(nil))
}

func TestSeverityOf(t *testing.T) {
	assert.Equal(t, SeverityCritical, SeverityOf(KindSystem))
	assert.Equal(t, SeverityCritical, SeverityOf(KindDatabase))
	assert.Equal(t, SeverityHigh, SeverityOf(KindAuthentication))
	assert.Equal(t, SeverityHigh, SeverityOf(KindNetwork))
	assert.Equal(t, SeverityMedium, SeverityOf(KindValidation))
	assert.Equal(t, SeverityMedium, SeverityOf(KindProcessing))
	assert.Equal(t, SeverityLow, SeverityOf(KindTimeout))
	assert.Equal(t, SeverityLow, SeverityOf(KindRateLimit))
	assert.Equal(t, SeverityLow, SeverityOf(KindNotFound))
	assert.True(t, SeverityCritical > SeverityHigh && SeverityHigh > SeverityMedium && SeverityMedium > SeverityLow)
}

func TestSeverity_TextRoundTrip(t *testing.T) {
	b, err := SeverityHigh.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "HIGH", string(b))

	var s Severity
	assert.NoError(t, s.UnmarshalText([]byte("critical")))
	assert.Equal(t, SeverityCritical, s)
	assert.Error(t, s.UnmarshalText([]byte("fatal")))
}

func TestDelay_DatabaseExponential(t *testing.T) {
	cfg := PolicyFor(KindDatabase)
	assert.Equal(t, 2*time.Second, Delay(cfg, 0))
	assert.Equal(t, 4*time.Second, Delay(cfg, 1))
	assert.Equal(t, 8*time.Second, Delay(cfg, 2))
	assert.Equal(t, 20*time.Second, Delay(cfg, 5), "capped at max delay")
}

func TestDelay_Strategies(t *testing.T) {
	assert.Equal(t, time.Duration(0), Delay(PolicyFor(KindValidation), 1))
	assert.Equal(t, 60*time.Second, Delay(PolicyFor(KindRateLimit), 3))

	timeout := PolicyFor(KindTimeout)
	assert.Equal(t, 5*time.Second, Delay(timeout, 0))
	assert.Equal(t, 10*time.Second, Delay(timeout, 1))
	assert.Equal(t, 15*time.Second, Delay(timeout, 2))
	assert.Equal(t, 15*time.Second, Delay(timeout, 7))

	system := PolicyFor(KindSystem)
	assert.Equal(t, 5*time.Second, Delay(system, 0))
	assert.Equal(t, 15*time.Second, Delay(system, 1))
	assert.Equal(t, 30*time.Second, Delay(system, 2))
}

func TestPolicyTable(t *testing.T) {
	auth := PolicyFor(KindAuthentication)
	assert.False(t, auth.ShouldRetry)
	assert.Equal(t, 0, auth.MaxAttempts)
	assert.Equal(t, StrategyNoRetry, auth.Strategy)

	expected := map[ErrorKind]int{
		KindValidation: 2,
		KindProcessing: 3,
		KindDatabase:   3,
		KindNetwork:    5,
		KindTimeout:    3,
		KindRateLimit:  5,
		KindSystem:     2,
	}
	for kind, attempts := range expected {
		assert.Equal(t, attempts, PolicyFor(kind).MaxAttempts, string(kind))
		assert.Equal(t, attempts, GetRetryCount(kind), string(kind))
	}

	assert.Equal(t, PolicyFor(KindSystem), PolicyFor(ErrorKind("UNKNOWN")))
}

func TestConstructors(t *testing.T) {
	err := NewRateLimitError("genai", 45*time.Second, nil)
	assert.Equal(t, KindRateLimit, err.Kind)
	assert.Contains(t, err.Error(), "retry after 45")
	assert.Equal(t, 45, err.Metadata["retryAfterSeconds"])
	assert.True(t, err.Retryable)

	auth := NewAuthenticationError("invalid api key")
	assert.False(t, auth.Retryable)
	assert.False(t, IsRetryable(auth))

	cause := fmt.Errorf("boom")
	sys := NewSystemError(cause)
	assert.ErrorIs(t, sys, cause)
	assert.Equal(t, "OTHER", GetErrorCategory(sys.Kind))
	assert.Equal(t, "EXTRACTION", GetErrorCategory(KindParse))
}

func TestErrorVariables(t *testing.T) {
	err := NewNetworkError("genai", fmt.Errorf("dial tcp: no route")).WithMetadata("probe", "failed")
	vars := ErrorVariables(err)

	assert.Equal(t, "NETWORK_ERROR", vars["errorKind"])
	assert.Equal(t, "HIGH", vars["errorSeverity"])
	assert.Equal(t, "failed", vars["probe"])
	assert.Equal(t, true, vars["retryable"])
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
		ok   bool
	}{
		{"RATE_LIMIT_ERROR: Rate limit exceeded for genai (retry after 30 seconds)", 30 * time.Second, true},
		{"Rate limit reached. Please try again in 1.5s.", 1500 * time.Millisecond, true},
		{"try again in 200ms", 200 * time.Millisecond, true},
		{"Retry After 12", 12 * time.Second, true},
		{"rate limit exceeded", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRetryAfter(tt.msg)
		assert.Equal(t, tt.ok, ok, tt.msg)
		assert.Equal(t, tt.want, got, tt.msg)
	}
}
