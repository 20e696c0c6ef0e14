package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShutdownManager(t *testing.T) {
	logger, _ := test.NewNullLogger()

	sm := NewShutdownManager(logger, nil, 0)
	assert.Equal(t, DefaultShutdownTimeout, sm.shutdownTimeout)

	sm = NewShutdownManager(nil, nil, time.Second)
	assert.Equal(t, time.Second, sm.shutdownTimeout)
	assert.NotNil(t, sm.logger)
}

func TestShutdownManager_RunsStepsInOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sm := NewShutdownManager(logger, nil, time.Second)

	var order []string
	for _, name := range []string{"cron", "otel", "redis", "database"} {
		name := name
		sm.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, []string{"cron", "otel", "redis", "database"}, order)
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sm := NewShutdownManager(logger, nil, time.Second)

	errRedis := errors.New("redis: client is closed")
	ran := false
	sm.Register("redis", func(context.Context) error { return errRedis })
	sm.Register("database", func(context.Context) error {
		ran = true
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, errRedis)
	assert.Contains(t, err.Error(), "redis:")
	assert.True(t, ran, "later steps still run")
	assert.Equal(t, "Shutdown step failed", hook.Entries[0].Message)
}

func TestShutdownManager_Timeout(t *testing.T) {
	logger, _ := test.NewNullLogger()
	sm := NewShutdownManager(logger, nil, 20*time.Millisecond)

	sm.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	skipped := true
	sm.Register("after", func(context.Context) error {
		skipped = false
		return nil
	})

	err := sm.Shutdown()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped)
}

func TestShutdownManager_WaitStopsServer(t *testing.T) {
	logger, _ := test.NewNullLogger()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &http.Server{Handler: http.NotFoundHandler()}
	served := make(chan error, 1)
	go func() { served <- server.Serve(ln) }()

	sm := NewShutdownManager(logger, server, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sm.Wait(ctx))
	select {
	case err := <-served:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}
