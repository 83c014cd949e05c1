// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/hwenc/internal/health"
	"github.com/ManuGH/hwenc/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testDeps(checks ...health.Checker) Deps {
	hm := health.NewManager("test")
	for _, c := range checks {
		hm.RegisterChecker(c)
	}
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "hwenc_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()
	return Deps{
		Logger:         log.WithComponent("test"),
		Health:         hm,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
}

func TestNewManagerValidatesDeps(t *testing.T) {
	_, err := NewManager(DefaultServerConfig(""), Deps{Logger: zerolog.New(io.Discard).Level(zerolog.Disabled)})
	assert.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(DefaultServerConfig(""), Deps{Logger: log.WithComponent("test")})
	assert.ErrorIs(t, err, ErrMissingHealth)

	mgr, err := NewManager(DefaultServerConfig(""), testDeps())
	require.NoError(t, err)
	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestRouter(t *testing.T) {
	down := health.CheckerFunc{CheckName: "stage", Fn: func(context.Context) health.CheckResult {
		return health.CheckResult{Status: health.StatusUnhealthy, Error: "device failed"}
	}}
	srv := httptest.NewServer(NewRouter(testDeps(down)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hwenc_test_total 1")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	var ready health.ReadinessResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, ready.Ready)
	assert.Equal(t, "device failed", ready.Checks["stage"].Error)

	resp, err = http.Post(srv.URL+"/healthz", "text/plain", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestManagerServesUntilCancelled(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), testDeps())
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	hook := func(name string, err error) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return err
		}
	}
	mgr.RegisterShutdownHook("first", hook("first", nil))
	mgr.RegisterShutdownHook("second", hook("second", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	require.Eventually(t, func() bool { return mgr.Addr() != "" }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + mgr.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, mgr.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManagerReportsHookErrors(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig(""), testDeps())
	require.NoError(t, err)
	boom := errors.New("boom")
	mgr.RegisterShutdownHook("sink", func(context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = mgr.Start(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, mgr.Addr())
}

func TestManagerListenFailure(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("256.0.0.1:bad"), testDeps())
	require.NoError(t, err)
	assert.Error(t, mgr.Start(context.Background()))
}
