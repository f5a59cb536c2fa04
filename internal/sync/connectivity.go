package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Watcher is the connectivity signal the coordinator consumes: a current
// online/offline answer plus change notifications.
type Watcher interface {
	Online() bool
	// Changes delivers connectivity transitions; true means online. The
	// channel is never closed while the watcher runs.
	Changes() <-chan bool
}

// Prober is the default Watcher. It decides connectivity by probing the
// remote health endpoint on an interval; there is no OS-level signal to
// subscribe to, so the probe is the signal.
type Prober struct {
	ping     func(ctx context.Context) error
	interval time.Duration

	online  atomic.Bool
	changes chan bool
}

// NewProber creates a connectivity prober. The prober starts offline until
// the first probe succeeds.
func NewProber(ping func(ctx context.Context) error, interval time.Duration) *Prober {
	return &Prober{
		ping:     ping,
		interval: interval,
		changes:  make(chan bool, 1),
	}
}

// Online reports the last observed connectivity state.
func (p *Prober) Online() bool {
	return p.online.Load()
}

// Changes delivers connectivity transitions.
func (p *Prober) Changes() <-chan bool {
	return p.changes
}

// Run probes until ctx is cancelled. Probes immediately on start, then on
// each tick.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

// ProbeOnce runs a single synchronous probe and reports the resulting
// state. Used by one-shot commands that cannot wait for the probe loop.
func (p *Prober) ProbeOnce(ctx context.Context) bool {
	p.probe(ctx)
	return p.Online()
}

func (p *Prober) probe(ctx context.Context) {
	err := p.ping(ctx)
	online := err == nil

	if p.online.Swap(online) == online {
		return // no transition
	}

	slog.Info("connectivity changed",
		"component", "sync",
		"action", "connectivity_changed",
		"online", online,
	)

	// Non-blocking send; a pending unread transition is superseded.
	select {
	case p.changes <- online:
	default:
		select {
		case <-p.changes:
		default:
		}
		p.changes <- online
	}
}
