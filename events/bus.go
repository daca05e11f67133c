package events

import (
	"time"

	"go.uber.org/zap"
)

type Type string

const (
	ServerStarting    Type = "server.starting"
	ServerReady        Type = "server.ready"
	ServerStartFailed  Type = "server.start_failed"
	ServerStopping     Type = "server.stopping"
	ServerStopped      Type = "server.stopped"
	PlayerLoginAttempt Type = "player.login_attempt"
	PlayerUnauthorized Type = "player.unauthorized"
	ProxyError         Type = "proxy.error"
)

// Event is the payload fanned out to every Notifier, mirroring the
// event/template vocabulary of original_source/proxy/notifications.py's
// NotificationManager (MESSAGE_TEMPLATES keyed by the same event names).
type Event struct {
	Type      Type
	ServerID  string
	Player    string
	Err       error
	Timestamp time.Time
}

// Notifier receives events best-effort; a slow or failing Notifier must
// never block the bus or the caller that published the event.
type Notifier interface {
	Notify(Event)
}

const bufferSize = 256

// Bus is a bounded, drop-oldest fan-out publisher. The admin panel and
// other external collaborators subscribe Notifiers; the core module
// only ships the usage-log Notifier (see UsageLogger) and the bus
// itself.
type Bus struct {
	log       *zap.Logger
	notifiers []Notifier
	ch        chan Event
	dropped   int64
	stopCh    chan struct{}
}

func NewBus(log *zap.Logger) *Bus {
	b := &Bus{
		log:    log,
		ch:     make(chan Event, bufferSize),
		stopCh: make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) Subscribe(n Notifier) {
	b.notifiers = append(b.notifiers, n)
}

// Publish never blocks: when the internal buffer is full, the oldest
// queued event is dropped to make room, since a best-effort
// notification pipeline must never throttle the proxy's hot path.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.ch <- evt:
	default:
		select {
		case <-b.ch:
			b.dropped++
		default:
		}
		select {
		case b.ch <- evt:
		default:
		}
	}
}

func (b *Bus) DroppedCount() int64 {
	return b.dropped
}

func (b *Bus) run() {
	for {
		select {
		case evt := <-b.ch:
			for _, n := range b.notifiers {
				n.Notify(evt)
			}
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) Close() {
	close(b.stopCh)
}
