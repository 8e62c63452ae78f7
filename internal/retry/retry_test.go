package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier() *Retrier {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRetrier(&RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		BackoffFactor:   2,
	}, logger)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"out of brokers", sarama.ErrOutOfBrokers, true},
		{"wrapped kafka", fmt.Errorf("connect: %w", sarama.ErrNotConnected), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9092: connect: connection refused"), true},
		{"explicit false", NewRetryableError(errors.New("timeout"), false), false},
		{"explicit true", NewRetryableError(errors.New("boom"), true), true},
		{"cancelled", context.Canceled, false},
		{"plain", errors.New("invalid topic"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestRetrier_SucceedsAfterRetries(t *testing.T) {
	r := fastRetrier()
	attempts := 0

	result, err := Do(context.Background(), r, "connect", func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", sarama.ErrOutOfBrokers
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_GivesUp(t *testing.T) {
	r := fastRetrier()
	attempts := 0

	err := r.Execute(context.Background(), "connect", func() error {
		attempts++
		return sarama.ErrOutOfBrokers
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Equal(t, 3, attempts)
}

func TestRetrier_NonRetryableStopsImmediately(t *testing.T) {
	r := fastRetrier()
	attempts := 0

	err := r.Execute(context.Background(), "connect", func() error {
		attempts++
		return errors.New("invalid configuration")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetrier_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetrier().Execute(ctx, "connect", func() error {
		t.Fatal("不应执行")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay_Capped(t *testing.T) {
	r := fastRetrier()
	assert.Equal(t, time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 2*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 5*time.Millisecond, r.calculateDelay(10))
}
