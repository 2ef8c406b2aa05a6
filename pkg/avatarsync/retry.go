package avatarsync

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
)

const (
	// DefaultMaxRetries is the retry budget used when callers have no opinion.
	DefaultMaxRetries = 3

	// MaxRetryDelay caps the wait between two attempts.
	MaxRetryDelay = 10 * time.Second
)

// RetryUpload runs Upload until it succeeds or retrying stops.
//
// After the n-th failed attempt it waits min(delay * 2^(n-1), max delay),
// where delay is the retry delay of the error's kind. Retrying stops when the
// error is not retryable, when maxRetries retries were made, or when the
// kind's own retry quota is used up. Each attempt opens a new transaction.
//
// Returns the URLs of the successful attempt, or the last error encountered.
func (o *Orchestrator) RetryUpload(ctx context.Context, file avatar.File, userID string, maxRetries int, onProgress avatar.ProgressFunc) (avatar.URLSet, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var (
		result   avatar.URLSet
		failures int
	)

	opts := []retry.Option{
		retry.Attempts(uint(maxRetries) + 1),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.MaxDelay(o.maxDelay),
		retry.WithTimer(o.timer),
		retry.RetryIf(func(err error) bool {
			failures++
			e, ok := avatar.AsError(err)
			if !ok || !e.Retryable() {
				return false
			}
			return failures <= min(maxRetries, e.Policy().MaxRetries)
		}),
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			return o.backoff(err, failures)
		}),
		retry.OnRetry(func(_ uint, err error) {
			kind, _ := avatar.KindOf(err)
			logger.Warn("Avatar upload attempt %d for %s failed, retrying in %s: %v",
				failures, userID, o.backoff(err, failures), err)
			o.metrics.RecordRetry(kind.String())
		}),
	}

	err := retry.Do(func() error {
		urls, err := o.Upload(ctx, file, userID, onProgress)
		if err != nil {
			return err
		}
		result = urls
		return nil
	}, opts...)
	if err != nil {
		// retry-go reports cancellation with the bare context error.
		if _, typed := avatar.AsError(err); !typed {
			err = avatar.NewError(avatar.KindUploadFailed, "upload cancelled", avatar.ErrorContext{
				UserID:      userID,
				FileName:    file.Name,
				ContentType: file.ContentType,
				FileSize:    file.Size,
			}, err)
		}
		return avatar.URLSet{}, err
	}
	return result, nil
}

// backoff returns the wait after the given number of failures.
func (o *Orchestrator) backoff(err error, failures int) time.Duration {
	kind, _ := avatar.KindOf(err)
	base := avatar.PolicyFor(kind).Delay
	if base <= 0 || failures < 1 {
		return 0
	}

	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= o.maxDelay {
			return o.maxDelay
		}
	}
	return min(d, o.maxDelay)
}
