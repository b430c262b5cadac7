package llmclient

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("llm returned an empty response")

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = time.Minute
	return b
}

// retry runs op under the client's backoff policy, bounded by ctx.
func retry(ctx context.Context, policy func() backoff.BackOff, op func() error) error {
	if policy == nil {
		policy = defaultBackOff
	}
	return backoff.Retry(op, backoff.WithContext(policy(), ctx))
}

// classify marks everything but throttling and server errors as permanent.
func classify(status int, err error) error {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable,
		http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}
