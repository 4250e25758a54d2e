package repo

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles every call to the wrapped Client.
// Each repository round-trip consumes one token.
type RateLimited struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limiter allowing rps calls per second.
// burst defaults to 1 when not positive. rps <= 0 disables throttling.
func NewRateLimited(next Client, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// Login implements Client.
func (r *RateLimited) Login(ctx context.Context, creds Credentials) (Session, error) {
	if err := r.wait(ctx); err != nil {
		return Session{}, err
	}
	return r.next.Login(ctx, creds)
}

// Checkout implements Client.
func (r *RateLimited) Checkout(ctx context.Context, sess Session, id DocID, force bool) (Document, error) {
	if err := r.wait(ctx); err != nil {
		return Document{}, err
	}
	return r.next.Checkout(ctx, sess, id, force)
}

// Validate implements Client.
func (r *RateLimited) Validate(ctx context.Context, sess Session, docType, content string) ([]Message, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Validate(ctx, sess, docType, content)
}

// Save implements Client.
func (r *RateLimited) Save(ctx context.Context, sess Session, id DocID, content string, opts SaveOptions) (SaveResult, error) {
	if err := r.wait(ctx); err != nil {
		return SaveResult{}, err
	}
	return r.next.Save(ctx, sess, id, content, opts)
}

// Unlock implements Client.
func (r *RateLimited) Unlock(ctx context.Context, sess Session, id DocID) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.Unlock(ctx, sess, id)
}
