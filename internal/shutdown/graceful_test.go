package shutdown

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShutdown(timeout time.Duration) *GracefulShutdown {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewGracefulShutdown(timeout, logger)
}

func TestGracefulShutdown_RunsInOrder(t *testing.T) {
	gs := newTestShutdown(time.Second)

	var order []string
	gs.RegisterShutdownFunc("close", func(ctx context.Context) error {
		order = append(order, "close")
		return nil
	}, OrderCloseConnections)
	gs.RegisterShutdownFunc("stop", func(ctx context.Context) error {
		order = append(order, "stop")
		return nil
	}, OrderStopAcceptingRequests)
	gs.RegisterShutdownFunc("wait", func(ctx context.Context) error {
		order = append(order, "wait")
		return errors.New("boom")
	}, OrderWaitForActiveRequests)

	assert.Equal(t, []string{"close", "stop", "wait"}, gs.GetRegisteredFunctions())
	assert.False(t, gs.IsShuttingDown())

	gs.Shutdown()
	gs.Wait()

	assert.Equal(t, []string{"stop", "wait", "close"}, order)
	assert.True(t, gs.IsShuttingDown())
	require.Len(t, gs.Errors(), 1)
	assert.ErrorIs(t, gs.Context().Err(), context.Canceled)
}

func TestGracefulShutdown_RunsOnce(t *testing.T) {
	gs := newTestShutdown(time.Second)

	calls := 0
	release := make(chan struct{})
	gs.RegisterShutdownFunc("slow", func(ctx context.Context) error {
		calls++
		<-release
		return nil
	}, OrderWaitForActiveRequests)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gs.Shutdown()
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	// 所有调用方返回时停机已经完成
	assert.Equal(t, 1, calls)
	assert.Error(t, gs.Context().Err())
}

func TestGracefulShutdown_Timeout(t *testing.T) {
	gs := newTestShutdown(20 * time.Millisecond)

	ran := false
	gs.RegisterShutdownFunc("hang", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, OrderWaitForActiveRequests)
	gs.RegisterShutdownFunc("after", func(ctx context.Context) error {
		ran = true
		return nil
	}, OrderCleanupResources)

	gs.Shutdown()
	assert.False(t, ran, "超时后不再执行后续步骤")
	assert.Equal(t, 20*time.Millisecond, gs.GetTimeout())
}

func TestGracefulShutdown_StartThenManual(t *testing.T) {
	gs := newTestShutdown(time.Second)
	gs.Start()
	gs.Shutdown()

	done := make(chan struct{})
	go func() {
		gs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait 未返回")
	}
}
