package util

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts, the first one included
	InitialWait time.Duration // Initial wait duration (doubled each retry)
	MaxWait     time.Duration // Maximum wait duration between retries
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// IsRetryableError checks if an error is worth retrying.
// Returns true for transient filesystem or store errors.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pathError *os.PathError
	var syscallError syscall.Errno

	if errors.As(err, &pathError) {
		err = pathError.Err
	}

	if errors.As(err, &syscallError) {
		switch syscallError {
		case syscall.EAGAIN,
			syscall.ETIMEDOUT,
			syscall.ECONNRESET,
			syscall.ENETDOWN,
			syscall.ENETUNREACH,
			syscall.EIO:
			return true
		}
	}

	// SQLite busy/locked surface as plain errors from the driver
	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"timed out",
		"database is locked",
		"database table is locked",
		"busy",
		"temporary failure",
		"resource temporarily unavailable",
		"i/o error",
		"too many open files",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// RetryWithBackoff executes a function with exponential backoff retry logic.
// Returns the result of the function or the final error after all retries
// are exhausted.
func RetryWithBackoff[T any](cfg *RetryConfig, operation func() (T, error), operationName string) (T, error) {
	var result T
	var err error

	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	waitDuration := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d",
					operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}

		if attempt == cfg.MaxAttempts {
			WarnLog("Retry: %s failed after %d attempts: %v",
				operationName, cfg.MaxAttempts, err)
			return result, fmt.Errorf("max retries exceeded (%d attempts): %w",
				cfg.MaxAttempts, err)
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, waitDuration, err)

		time.Sleep(waitDuration)

		waitDuration *= 2
		if waitDuration > cfg.MaxWait {
			waitDuration = cfg.MaxWait
		}
	}

	return result, fmt.Errorf("unexpected retry loop exit: %w", err)
}

// Retry executes a function with retry logic (no return value)
func Retry(cfg *RetryConfig, operation func() error, operationName string) error {
	_, err := RetryWithBackoff(cfg, func() (struct{}, error) {
		return struct{}{}, operation()
	}, operationName)
	return err
}
