package comet

import (
	"errors"
	"fmt"

	"github.com/cometd/engine/internal/log"
)

// ErrTooManyChannels is returned by Registry.Create when creating another
// channel would exceed the configured MaxVirtualChannels cap (spec.md §4.1).
var ErrTooManyChannels = errors.New("comet: too many virtual channels")

// ErrUnknownChannel is returned by Registry.Find when an id was never
// created, or has since been destroyed (spec.md §4.1).
var ErrUnknownChannel = errors.New("comet: unknown channel")

// request kinds processed by the registry's single owning goroutine. This
// generalizes the teacher hub's register/unregister/broadcast select loop
// (hub.go) from "which connections get a namespace-matched message" to
// "which channel does this id map to, and is the cap respected."
type createReq struct {
	id     string
	events <-chan Event
	reply  chan<- createReply
}

type createReply struct {
	ch  *Channel
	err error
}

type findReq struct {
	id    string
	reply chan<- findReply
}

type findReply struct {
	ch *Channel
	ok bool
}

type destroyReq struct {
	id string
}

type statusReq struct {
	reply chan<- RegistryStatus
}

// Registry is the process-wide directory from channel id to Channel
// (spec.md §3, §4.1). The application creates channels through it,
// publishers send on the event source they passed to Create, and the
// application calls Destroy when a channel's lifetime ends. The Registry
// itself never extends a channel's lifetime past that call.
//
// All state is owned by a single goroutine (run), mirroring how the
// teacher's hub owns `connections` without a separate mutex: the cap check
// and the insert happen atomically because nothing else can observe the
// map in between.
type Registry struct {
	maxChannels *int
	log         log.Logger
	metrics     *Metrics

	create  chan createReq
	find    chan findReq
	destroy chan destroyReq
	status  chan statusReq

	stopped chan struct{}
}

// newRegistry builds a Registry without starting its owning goroutine,
// so callers (notably Server) can finish wiring collaborators (metrics,
// logger) onto it race-free before anything reads them concurrently. This
// mirrors the teacher's own newHub()-then-later-Start() split
// (hub.go/server.go): construction and "go live" are separate steps.
func newRegistry(cfg Config) *Registry {
	return &Registry{
		maxChannels: cfg.MaxVirtualChannels,
		log:         log.Discard(),
		create:      make(chan createReq),
		find:        make(chan findReq),
		destroy:     make(chan destroyReq),
		status:      make(chan statusReq),
		stopped:     make(chan struct{}),
	}
}

// Start launches the registry's owning goroutine. Safe to call only once.
func (r *Registry) Start() {
	go r.run()
}

// NewRegistry creates a Registry honoring cfg.MaxVirtualChannels and
// immediately starts it. Pass a logger/metrics via RegistryOption, or
// leave them at their zero-value defaults (a discarding logger, no
// metrics).
func NewRegistry(cfg Config, opts ...RegistryOption) *Registry {
	r := newRegistry(cfg)
	for _, opt := range opts {
		opt(r)
	}
	r.Start()
	return r
}

// RegistryOption configures optional Registry collaborators.
type RegistryOption func(*Registry)

// WithRegistryLogger attaches a logger used for channel lifecycle tracing.
func WithRegistryLogger(l log.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// WithMetrics attaches Prometheus-backed instrumentation.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func (r *Registry) run() {
	channels := make(map[string]*Channel)

	for {
		select {
		case req := <-r.create:
			if r.maxChannels != nil && len(channels) >= *r.maxChannels {
				req.reply <- createReply{err: fmt.Errorf("%w: cap is %d", ErrTooManyChannels, *r.maxChannels)}
				continue
			}
			id := newChannelID()
			for _, exists := channels[id]; exists; _, exists = channels[id] {
				id = newChannelID() // practically unreachable given 128 bits of entropy
			}
			ch := newChannel(id, req.events)
			channels[id] = ch
			r.log.V(1).Info("channel created", "id", id, "live", len(channels))
			if r.metrics != nil {
				r.metrics.setLiveChannels(len(channels))
			}
			req.reply <- createReply{ch: ch}

		case req := <-r.find:
			ch, ok := channels[req.id]
			req.reply <- findReply{ch: ch, ok: ok}

		case req := <-r.destroy:
			if ch, ok := channels[req.id]; ok {
				delete(channels, req.id)
				close(ch.destroyed)
				r.log.V(1).Info("channel destroyed", "id", req.id, "live", len(channels))
				if r.metrics != nil {
					r.metrics.setLiveChannels(len(channels))
				}
			}

		case req := <-r.status:
			var waiters int64
			for _, ch := range channels {
				waiters += ch.Listeners()
			}
			req.reply <- RegistryStatus{LiveChannels: len(channels), Waiters: waiters}

		case <-r.stopped:
			return
		}
	}
}

// Create allocates a fresh channel wrapping events, inserts it into the
// registry, and returns it. Fails with ErrTooManyChannels if the
// configured cap would be exceeded (spec.md §4.1).
func (r *Registry) Create(events <-chan Event) (*Channel, error) {
	reply := make(chan createReply, 1)
	r.create <- createReq{events: events, reply: reply}
	res := <-reply
	return res.ch, res.err
}

// Find returns the live channel for id, or ErrUnknownChannel if it was
// never created or has since been destroyed.
func (r *Registry) Find(id string) (*Channel, error) {
	reply := make(chan findReply, 1)
	r.find <- findReq{id: id, reply: reply}
	res := <-reply
	if !res.ok {
		return nil, ErrUnknownChannel
	}
	return res.ch, nil
}

// Destroy removes id from the registry, after which Find reports it as
// unknown. This is the explicit substitute for the source's weak-map
// retention (spec.md §9): Go has no reference-weak map, so the application
// must call Destroy when it drops its own reference to a channel.
func (r *Registry) Destroy(id string) {
	r.destroy <- destroyReq{id: id}
}

// Status returns a snapshot of live channel count and total waiters across
// all channels, for the admin/status surface (SPEC_FULL.md §4.6).
func (r *Registry) Status() RegistryStatus {
	reply := make(chan RegistryStatus, 1)
	r.status <- statusReq{reply: reply}
	return <-reply
}

// Shutdown stops the registry's owning goroutine. Safe to call once;
// further Create/Find/Destroy calls will block forever, matching the
// teacher's documented "Shutdown returns immediately, does not drain
// active connections" contract (server.go).
func (r *Registry) Shutdown() {
	close(r.stopped)
}

// RegistryStatus is a point-in-time snapshot of registry-wide counters.
type RegistryStatus struct {
	LiveChannels int
	Waiters      int64
}
