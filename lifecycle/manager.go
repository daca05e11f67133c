package lifecycle

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sawolke/mcwake/config"
	"github.com/sawolke/mcwake/containerctl"
	"github.com/sawolke/mcwake/events"
	"github.com/sawolke/mcwake/metrics"
	"github.com/sawolke/mcwake/probe"
	"go.uber.org/zap"
)

const idleCheckInterval = 30 * time.Second

// ContainerRuntime is the subset of containerctl.Ctl the Lifecycle
// Manager needs - narrowed to an interface so tests can substitute a
// fake container runtime instead of a live Docker daemon.
type ContainerRuntime interface {
	Start(ctx context.Context, containerName string) error
	Stop(ctx context.Context, containerName string, timeout time.Duration) error
	Status(ctx context.Context, containerName string) (containerctl.Status, error)
}

// Manager owns one Runtime per configured server and is the only thing
// that talks to ContainerCtl to start or stop a backend. It is
// generalized from the teacher's per-domain BackendWorker dispatch into
// per-server container lifecycle management.
type Manager struct {
	ctl    ContainerRuntime
	prober *probe.Prober
	bus    *events.Bus
	log    *zap.Logger

	mu        sync.RWMutex
	runtimes  map[string]*Runtime

	stopCh chan struct{}
}

func NewManager(ctl ContainerRuntime, prober *probe.Prober, bus *events.Bus, log *zap.Logger) *Manager {
	return &Manager{
		ctl:      ctl,
		prober:   prober,
		bus:      bus,
		log:      log,
		runtimes: make(map[string]*Runtime),
		stopCh:   make(chan struct{}),
	}
}

// Sync replaces the manager's server set with cfgs, adding Runtimes for
// new servers and updating the config on ones that already exist. It is
// registered as a config.Store.OnLoad callback so editing a server's
// JSON file (or any later call to Store.Load) keeps the lifecycle set
// current without a restart.
func (m *Manager) Sync(cfgs []config.ServerConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		seen[cfg.ID] = true
		if rt, ok := m.runtimes[cfg.ID]; ok {
			rt.SetConfig(cfg)
		} else {
			m.runtimes[cfg.ID] = NewRuntime(cfg)
		}
	}
	for id := range m.runtimes {
		if !seen[id] {
			delete(m.runtimes, id)
		}
	}
}

func (m *Manager) Runtime(id string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[id]
	return rt, ok
}

// EnsureRunning starts the server's container if needed and blocks
// until it is ready to accept connections or ctx expires. Concurrent
// callers for the same server share one underlying start attempt.
func (m *Manager) EnsureRunning(ctx context.Context, id string) error {
	rt, ok := m.Runtime(id)
	if !ok {
		return fmt.Errorf("unknown server %q", id)
	}

	// Reconcile against the container runtime's own view of the world
	// before trusting in-memory RUNNING state: a crash or an
	// out-of-band `docker stop` must not be masked by a stale flag,
	// mirroring mc_proxy.py's handle_login_request re-sync.
	if rt.State() == Running {
		status, err := m.ctl.Status(ctx, rt.Config().ContainerName)
		if err == nil && status.State != containerctl.StateRunning {
			rt.reconcileStopped()
		}
	}

	waitCh, isLeader := rt.beginStart()
	if isLeader {
		cfg := rt.Config()
		metrics.StartAttemptsTotal.WithLabelValues(id).Inc()
		m.bus.Publish(events.Event{Type: events.ServerStarting, ServerID: id})
		go m.runStart(rt, cfg)
	}

	select {
	case <-waitCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := rt.startErrSnapshot(); err != nil {
		metrics.StartFailuresTotal.WithLabelValues(id).Inc()
		m.bus.Publish(events.Event{Type: events.ServerStartFailed, ServerID: id, Err: err})
		return err
	}
	return nil
}

func (rt *Runtime) startErrSnapshot() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.startErr
}

func (m *Manager) runStart(rt *Runtime, cfg config.ServerConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MaxStartupWait.Duration)
	defer cancel()

	// A failed attempt is counted and published once, here, however
	// many callers were waiting on it.
	fail := func(err error) {
		rt.finishStart(err)
		metrics.StartFailuresTotal.WithLabelValues(cfg.ID).Inc()
		m.bus.Publish(events.Event{Type: events.ServerStartFailed, ServerID: cfg.ID, Err: err})
	}

	status, err := m.ctl.Status(ctx, cfg.ContainerName)
	if err != nil {
		fail(fmt.Errorf("checking container status: %w", err))
		return
	}
	if status.State != containerctl.StateRunning {
		if err := m.ctl.Start(ctx, cfg.ContainerName); err != nil {
			fail(fmt.Errorf("starting container: %w", err))
			return
		}
	}

	if err := m.waitReady(ctx, cfg); err != nil {
		fail(err)
		return
	}

	rt.finishStart(nil)
	m.bus.Publish(events.Event{Type: events.ServerReady, ServerID: cfg.ID})
}

// waitReady prefers the container's own health check when the image
// defines one, falling back to a protocol-level probe otherwise -
// container-health-first, protocol-probe-fallback, per the spec.
func (m *Manager) waitReady(ctx context.Context, cfg config.ServerConfig) error {
	backoff := 100 * time.Millisecond
	for {
		status, err := m.ctl.Status(ctx, cfg.ContainerName)
		if err == nil {
			switch status.Health {
			case containerctl.HealthHealthy:
				return nil
			case containerctl.HealthUnhealthy:
				return fmt.Errorf("container reported unhealthy")
			case "":
				// No health check configured - fall through to a
				// protocol-level probe against the internal address.
				addr := net.JoinHostPort(cfg.InternalHost, strconv.Itoa(cfg.InternalPort))
				if cfg.Edition == config.Bedrock {
					return m.prober.WaitBedrock(ctx, net.JoinHostPort(cfg.InternalHost, strconv.Itoa(cfg.BedrockInternalPort)))
				}
				return m.prober.WaitJava(ctx, addr)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

// IncSession/DecSession track active client connections for a server,
// used by the idle reaper and exposed on the active-sessions gauge.
func (m *Manager) IncSession(id string) {
	if rt, ok := m.Runtime(id); ok {
		rt.incSession()
		metrics.ActiveSessions.WithLabelValues(id).Inc()
	}
}

func (m *Manager) DecSession(id string) {
	if rt, ok := m.Runtime(id); ok {
		rt.decSession()
		metrics.ActiveSessions.WithLabelValues(id).Dec()
	}
}

// RunIdleReaper blocks, periodically stopping any server that has had
// no active sessions for longer than its configured idle timeout. It
// is meant to be run in its own goroutine for the process lifetime,
// grounded on the teacher's ticker-based polling idiom.
func (m *Manager) RunIdleReaper(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapIdle(ctx)
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

// ReapIdleForTest exposes the idle-reap sweep synchronously for tests;
// production code only reaches it through RunIdleReaper's ticker loop.
func (m *Manager) ReapIdleForTest(ctx context.Context) {
	m.reapIdle(ctx)
}

func (m *Manager) reapIdle(ctx context.Context) {
	m.mu.RLock()
	runtimes := make(map[string]*Runtime, len(m.runtimes))
	for id, rt := range m.runtimes {
		runtimes[id] = rt
	}
	m.mu.RUnlock()

	for id, rt := range runtimes {
		idle, since := rt.idleSince()
		if !idle || since < rt.Config().IdleTimeout.Duration {
			continue
		}
		m.stopServer(ctx, id, rt)
	}
}

func (m *Manager) stopServer(ctx context.Context, id string, rt *Runtime) {
	if !rt.beginStop() {
		return
	}
	cfg := rt.Config()
	m.bus.Publish(events.Event{Type: events.ServerStopping, ServerID: id})

	stopCtx, cancel := context.WithTimeout(ctx, cfg.StopTimeout.Duration+5*time.Second)
	defer cancel()
	if err := m.ctl.Stop(stopCtx, cfg.ContainerName, cfg.StopTimeout.Duration); err != nil {
		m.log.Warn("failed to stop idle container", zap.String("server_id", id), zap.Error(err))
	}

	rt.finishStop()
	metrics.IdleReapsTotal.WithLabelValues(id).Inc()
	m.bus.Publish(events.Event{Type: events.ServerStopped, ServerID: id})
}

func (m *Manager) Close() {
	close(m.stopCh)
}
