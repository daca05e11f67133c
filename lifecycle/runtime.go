package lifecycle

import (
	"sync"
	"time"

	"github.com/sawolke/mcwake/config"
)

type State byte

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Runtime is the in-memory lifecycle record for one configured server,
// generalizing the teacher's McServerState from a binary online/offline
// cache into the full state machine the spec requires, with a waiter
// broadcast so every caller blocked on a start shares one outcome.
type Runtime struct {
	mu sync.Mutex

	cfg config.ServerConfig

	state          State
	activeSessions int
	lastActivity   time.Time
	startErr       error
	waiters        chan struct{}
}

func NewRuntime(cfg config.ServerConfig) *Runtime {
	return &Runtime{cfg: cfg, state: Stopped}
}

func (r *Runtime) Config() config.ServerConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

func (r *Runtime) SetConfig(cfg config.ServerConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// beginStart transitions STOPPED->STARTING and returns (waitCh, true)
// for the caller that must actually do the work. Every other caller
// that arrives while a start is already in flight gets the same waitCh
// and false, so only one goroutine ever dials the container runtime -
// this is the single-flight dedup the spec requires.
func (r *Runtime) beginStart() (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Running:
		ch := make(chan struct{})
		close(ch)
		return ch, false
	case Starting:
		return r.waiters, false
	}

	r.state = Starting
	r.startErr = nil
	r.waiters = make(chan struct{})
	return r.waiters, true
}

// finishStart transitions STARTING into RUNNING or back to STOPPED and
// wakes every waiter blocked on the shared channel.
func (r *Runtime) finishStart(err error) {
	r.mu.Lock()
	if err != nil {
		r.state = Stopped
		r.startErr = err
	} else {
		r.state = Running
		r.lastActivity = time.Now()
	}
	waiters := r.waiters
	r.waiters = nil
	r.mu.Unlock()

	if waiters != nil {
		close(waiters)
	}
}

func (r *Runtime) beginStop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running {
		return false
	}
	r.state = Stopping
	return true
}

func (r *Runtime) finishStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Stopped
	r.activeSessions = 0
}

// reconcileStopped force-sets the state to STOPPED regardless of what
// it was, used when the Lifecycle Manager observes the backing
// container has exited on its own (crash, OOM-kill, admin docker stop).
func (r *Runtime) reconcileStopped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Stopped
	r.activeSessions = 0
}

func (r *Runtime) incSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeSessions++
	r.lastActivity = time.Now()
}

func (r *Runtime) decSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeSessions > 0 {
		r.activeSessions--
	}
	r.lastActivity = time.Now()
}

func (r *Runtime) idleSince() (idle bool, since time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running || r.activeSessions > 0 {
		return false, 0
	}
	return true, time.Since(r.lastActivity)
}
