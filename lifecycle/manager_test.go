package lifecycle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sawolke/mcwake/config"
	"github.com/sawolke/mcwake/containerctl"
	"github.com/sawolke/mcwake/events"
	"github.com/sawolke/mcwake/lifecycle"
	"github.com/sawolke/mcwake/probe"
	"go.uber.org/zap"
)

type fakeRuntime struct {
	mu         sync.Mutex
	status     containerctl.Status
	startCalls int
	stopCalls  int
	startErr   error
}

func (f *fakeRuntime) Start(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	if f.startErr != nil {
		return f.startErr
	}
	f.status = containerctl.Status{State: containerctl.StateRunning, Health: containerctl.HealthHealthy}
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, name string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	f.status = containerctl.Status{State: containerctl.StateExited}
	return nil
}

func (f *fakeRuntime) Status(ctx context.Context, name string) (containerctl.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func testConfig(id string) config.ServerConfig {
	cfg := config.DefaultServerConfig()
	cfg.ID = id
	cfg.ContainerName = "mc-" + id
	cfg.InternalHost = "127.0.0.1"
	cfg.InternalPort = 25565
	cfg.MaxStartupWait = config.Duration{Duration: 2 * time.Second}
	cfg.StopTimeout = config.Duration{Duration: time.Second}
	cfg.IdleTimeout = config.Duration{Duration: 50 * time.Millisecond}
	return cfg
}

func TestEnsureRunning_StartsAndBecomesReady(t *testing.T) {
	fr := &fakeRuntime{status: containerctl.Status{State: containerctl.StateMissing}}
	mgr := lifecycle.NewManager(fr, probe.New(), events.NewBus(zap.NewNop()), zap.NewNop())
	mgr.Sync([]config.ServerConfig{testConfig("a")})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := mgr.EnsureRunning(ctx, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fr.startCalls != 1 {
		t.Errorf("expected 1 start call, got %d", fr.startCalls)
	}

	rt, _ := mgr.Runtime("a")
	if rt.State() != lifecycle.Running {
		t.Errorf("expected Running, got %v", rt.State())
	}
}

func TestEnsureRunning_ConcurrentCallersShareOneStart(t *testing.T) {
	fr := &fakeRuntime{status: containerctl.Status{State: containerctl.StateMissing}}
	mgr := lifecycle.NewManager(fr, probe.New(), events.NewBus(zap.NewNop()), zap.NewNop())
	mgr.Sync([]config.ServerConfig{testConfig("a")})

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			errs[i] = mgr.EnsureRunning(ctx, "a")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if fr.startCalls != 1 {
		t.Errorf("expected exactly 1 start call across 10 concurrent callers, got %d", fr.startCalls)
	}
}

func TestIdleReaper_StopsIdleServer(t *testing.T) {
	fr := &fakeRuntime{status: containerctl.Status{State: containerctl.StateRunning, Health: containerctl.HealthHealthy}}
	mgr := lifecycle.NewManager(fr, probe.New(), events.NewBus(zap.NewNop()), zap.NewNop())
	cfg := testConfig("a")
	mgr.Sync([]config.ServerConfig{cfg})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.EnsureRunning(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond) // cross the 50ms idle timeout with zero sessions
	mgr.ReapIdleForTest(ctx)

	rt, _ := mgr.Runtime("a")
	if rt.State() != lifecycle.Stopped {
		t.Errorf("expected Stopped after idle reap, got %v", rt.State())
	}
	if fr.stopCalls != 1 {
		t.Errorf("expected 1 stop call, got %d", fr.stopCalls)
	}
}

func TestIdleReaper_ActiveSessionPreventsIdleReap(t *testing.T) {
	fr := &fakeRuntime{status: containerctl.Status{State: containerctl.StateRunning, Health: containerctl.HealthHealthy}}
	mgr := lifecycle.NewManager(fr, probe.New(), events.NewBus(zap.NewNop()), zap.NewNop())
	cfg := testConfig("a")
	mgr.Sync([]config.ServerConfig{cfg})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := mgr.EnsureRunning(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	mgr.IncSession("a")

	time.Sleep(100 * time.Millisecond)
	mgr.ReapIdleForTest(ctx)

	rt, _ := mgr.Runtime("a")
	if rt.State() != lifecycle.Running {
		t.Errorf("expected still Running with an active session, got %v", rt.State())
	}
}
