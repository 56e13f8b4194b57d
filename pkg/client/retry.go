package client

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dustfall/arcade-backend/pkg/protocol"
)

// Join and create refusals split by error category: transient transport
// trouble is worth another attempt, a full or missing or already-running
// room is not and must surface untouched, alternatives intact.

const (
	joinRetryInitial    = 200 * time.Millisecond
	joinRetryMaxElapsed = 10 * time.Second
)

func joinPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = joinRetryInitial
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = joinRetryMaxElapsed
	return b
}

// retryTransient runs op under pol, retrying only failures whose code maps
// to the transient category.
func retryTransient(ctx context.Context, pol backoff.BackOff, log *zap.Logger, op func() error) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !protocol.CodeOf(err).Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(pol, ctx), func(err error, next time.Duration) {
		log.Debug("transient failure",
			zap.Error(err),
			zap.Duration("retry_in", next))
	})
}

func (c *Client) joinWithRetry(ctx context.Context, t protocol.MsgType, payload any) error {
	return retryTransient(ctx, joinPolicy(), c.log, func() error {
		return c.roundTrip(ctx, t, payload)
	})
}
