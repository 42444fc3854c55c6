package errors

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	StrategyImmediate   Strategy = "IMMEDIATE"
	StrategyFixed       Strategy = "FIXED_INTERVAL"
	StrategyLinear      Strategy = "LINEAR_BACKOFF"
	StrategyExponential Strategy = "EXPONENTIAL_BACKOFF"
	StrategyNoRetry     Strategy = "NO_RETRY"
)

// RetryConfiguration is the static retry policy of one ErrorKind.
type RetryConfiguration struct {
	Strategy          Strategy      `json:"strategy"`
	MaxAttempts       int           `json:"maxAttempts"`
	BaseDelay         time.Duration `json:"baseDelay"`
	MaxDelay          time.Duration `json:"maxDelay"`
	BackoffMultiplier float64       `json:"backoffMultiplier"`
	ShouldRetry       bool          `json:"shouldRetry"`
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// retryTable is immutable; PolicyFor hands out copies.
var retryTable = map[ErrorKind]RetryConfiguration{
	KindValidation: {
		Strategy: StrategyImmediate, MaxAttempts: 2,
		BaseDelay: seconds(0.5), MaxDelay: seconds(2), BackoffMultiplier: 1.0, ShouldRetry: true,
	},
	KindProcessing: {
		Strategy: StrategyExponential, MaxAttempts: 3,
		BaseDelay: seconds(1), MaxDelay: seconds(10), BackoffMultiplier: 2.0, ShouldRetry: true,
	},
	// Unparseable extractor output is retried like an extractor failure.
	KindParse: {
		Strategy: StrategyExponential, MaxAttempts: 3,
		BaseDelay: seconds(1), MaxDelay: seconds(10), BackoffMultiplier: 2.0, ShouldRetry: true,
	},
	KindDatabase: {
		Strategy: StrategyExponential, MaxAttempts: 3,
		BaseDelay: seconds(2), MaxDelay: seconds(20), BackoffMultiplier: 2.0, ShouldRetry: true,
	},
	KindNetwork: {
		Strategy: StrategyExponential, MaxAttempts: 5,
		BaseDelay: seconds(1), MaxDelay: seconds(30), BackoffMultiplier: 2.0, ShouldRetry: true,
	},
	KindTimeout: {
		Strategy: StrategyLinear, MaxAttempts: 3,
		BaseDelay: seconds(5), MaxDelay: seconds(15), BackoffMultiplier: 1.5, ShouldRetry: true,
	},
	KindRateLimit: {
		Strategy: StrategyFixed, MaxAttempts: 5,
		BaseDelay: seconds(60), MaxDelay: seconds(300), BackoffMultiplier: 1.0, ShouldRetry: true,
	},
	KindAuthentication: {
		Strategy: StrategyNoRetry, MaxAttempts: 0, ShouldRetry: false,
	},
	KindNotFound: {
		Strategy: StrategyNoRetry, MaxAttempts: 0, ShouldRetry: false,
	},
	KindSystem: {
		Strategy: StrategyExponential, MaxAttempts: 2,
		BaseDelay: seconds(5), MaxDelay: seconds(30), BackoffMultiplier: 3.0, ShouldRetry: true,
	},
}

// PolicyFor returns the retry policy of kind. Unknown kinds get the SYSTEM_ERROR row.
func PolicyFor(kind ErrorKind) RetryConfiguration {
	if cfg, ok := retryTable[kind]; ok {
		return cfg
	}
	return retryTable[KindSystem]
}

// GetRetryCount returns the number of attempts the policy of kind allows.
func GetRetryCount(kind ErrorKind) int {
	cfg := PolicyFor(kind)
	if !cfg.ShouldRetry {
		return 0
	}
	return cfg.MaxAttempts
}

// Delay computes the wait before the attempt following attempt (zero based).
func Delay(cfg RetryConfiguration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	switch cfg.Strategy {
	case StrategyImmediate, StrategyNoRetry:
		return 0
	case StrategyFixed:
		return cfg.BaseDelay
	case StrategyLinear:
		return capDelay(time.Duration(float64(cfg.BaseDelay)*float64(attempt+1)), cfg.MaxDelay)
	case StrategyExponential:
		d := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
		if math.IsInf(d, 0) || d > float64(math.MaxInt64) {
			return cfg.MaxDelay
		}
		return capDelay(time.Duration(d), cfg.MaxDelay)
	default:
		return cfg.BaseDelay
	}
}

func capDelay(d, max time.Duration) time.Duration {
	if max > 0 && d > max {
		return max
	}
	return d
}

var retryAfterPattern = regexp.MustCompile(`(?i)(?:retry after|try again in)\s*(\d+(?:\.\d+)?)\s*(ms|s|sec|seconds?)?`)

// ParseRetryAfter extracts a "retry after N" style hint from a message.
// A bare number is read as seconds.
func ParseRetryAfter(message string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2], "ms") {
		return time.Duration(n * float64(time.Millisecond)), true
	}
	return time.Duration(n * float64(time.Second)), true
}
