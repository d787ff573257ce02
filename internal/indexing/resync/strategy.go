package resync

import (
	"errors"
	"math"
	"time"

	"github.com/vietddude/envelope-indexer/internal/indexing/reconcile"
	"github.com/vietddude/envelope-indexer/internal/infra/chain/sui"
	"github.com/vietddude/envelope-indexer/internal/infra/rpc/routing"
)

// FailureCategory tells whether a failed job can succeed on a later attempt.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

func (c FailureCategory) String() string {
	if c == CategoryPermanent {
		return "permanent"
	}
	return "transient"
}

// Classifier maps a job error to a failure category.
type Classifier func(err error) FailureCategory

// ClassifyFailure treats chain answers that will not change as permanent:
// objects that are gone or of another type, transactions without a claim
// and requests the node rejects as invalid. Everything else is retried.
func ClassifyFailure(err error) FailureCategory {
	switch {
	case errors.Is(err, reconcile.ErrNoClaimEvent),
		errors.Is(err, sui.ErrObjectNotFound),
		errors.Is(err, sui.ErrWrongObjectType),
		errors.Is(err, errUnknownKind):
		return CategoryPermanent
	case routing.ClassifyError(err) == routing.ActionFatal:
		return CategoryPermanent
	}
	return CategoryTransient
}

// RetryStrategy defines how retries should be handled.
type RetryStrategy interface {
	// GetDelay returns the delay for the given attempt (0-indexed).
	GetDelay(attempt int) time.Duration

	// ShouldRetry checks if we should retry based on the error and attempt count.
	ShouldRetry(err error, attempt int) bool
}

// ExponentialBackoff implements a standard backoff strategy.
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Classifier   Classifier
}

// DefaultBackoff returns 2s, 4s, 8s, 16s, 32s (max 60s) over maxAttempts
// attempts. A nil classifier uses ClassifyFailure.
func DefaultBackoff(maxAttempts int, classifier Classifier) *ExponentialBackoff {
	if classifier == nil {
		classifier = ClassifyFailure
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &ExponentialBackoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		MaxAttempts:  maxAttempts,
		Classifier:   classifier,
	}
}

// GetDelay calculates delay: InitialDelay * 2^attempt
func (s *ExponentialBackoff) GetDelay(attempt int) time.Duration {
	delay := float64(s.InitialDelay) * math.Pow(2, float64(attempt))
	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry checks if error is transient and max attempts not exceeded.
func (s *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if attempt >= s.MaxAttempts {
		return false
	}
	return s.Classifier(err) == CategoryTransient
}
