package httpserver

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServeAndWait_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Addr: freeAddr(t), Handler: http.NotFoundHandler()}

	var stopped []string
	stopper := func(name string) Stopper {
		return Stopper{Name: name, Stop: func(context.Context) { stopped = append(stopped, name) }}
	}

	done := make(chan error, 1)
	go func() {
		done <- ServeAndWait(ctx, zap.NewNop(), srv, time.Second, stopper("watcher"), stopper("scheduler"))
	}()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ServeAndWait did not return")
	}
	assert.Equal(t, []string{"watcher", "scheduler"}, stopped)
}

func TestServeAndWait_ListenFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	stopped := false
	srv := &http.Server{Addr: l.Addr().String(), Handler: http.NotFoundHandler()}
	err = ServeAndWait(context.Background(), nil, srv, time.Second,
		Stopper{Name: "bot", Stop: func(context.Context) { stopped = true }})

	require.ErrorContains(t, err, "http server failed")
	assert.True(t, stopped)
}

func TestServeAndWait_NilServer(t *testing.T) {
	require.Error(t, ServeAndWait(context.Background(), nil, nil, 0))
}
