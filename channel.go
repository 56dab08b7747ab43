package comet

import "sync/atomic"

// Tag is the opaque correlator an event publisher may attach to a
// published event so a later outcome report can be matched back to it.
// The zero value is "no tag" (spec.md §3: tag is optional).
type Tag struct {
	Value int64
	Set   bool
}

// NoTag is the zero value meaning "this event carries no tag."
var NoTag = Tag{}

// WithTag returns a Tag carrying the given correlator value.
func WithTag(v int64) Tag { return Tag{Value: v, Set: true} }

// Outcome is the delivery result reported back to a channel's owner after
// a tagged event is (or is not) successfully transmitted.
type Outcome struct {
	Delivered bool
	Tag       int64
}

// Event is one payload published to a Channel, with its optional tag.
type Event struct {
	Payload []byte
	Tag     Tag
}

// Channel is one virtual pub/sub endpoint (spec.md §3): it wraps a
// producer-supplied event source, broadcasts each published event to every
// request currently subscribed, exposes a stream of delivery outcomes back
// to the producer, and tracks a live listener count. ReportOutcome,
// AddListeners and Listeners never block; Subscribe and its cancel func
// wait only until the broadcaster loop below accepts the request.
//
// Internally a Channel runs its own single-goroutine broadcaster, the same
// shape as the teacher's hub.run() (hub.go) scaled down to one channel:
// subscribe/unsubscribe requests and incoming producer events are all
// serialized through one select loop, so fan-out to current subscribers
// never races their registration. This is the "shared broadcast primitive"
// substitute spec.md §9 calls for in place of the source's FRP event
// merge, since a Go chan is unicast among readers and cannot itself give
// every waiter its own copy of a publish.
type Channel struct {
	id string

	outcomes  chan Outcome
	listeners int64 // atomic

	subscribe   chan chan Event
	unsubscribe chan chan Event
	destroyed   chan struct{}
}

// subscriberBuf is how many events a slow subscriber may lag behind by
// before further publishes to it are dropped rather than blocking the
// broadcaster (mirrors connection.go's buffered `send` channel pattern).
const subscriberBuf = 8

// newChannel wraps a pre-existing producer event source into a Channel and
// starts its broadcaster goroutine.
func newChannel(id string, events <-chan Event) *Channel {
	c := &Channel{
		id:          id,
		outcomes:    make(chan Outcome, 32),
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		destroyed:   make(chan struct{}),
	}
	go c.run(events)
	return c
}

func (c *Channel) run(events <-chan Event) {
	subs := make(map[chan Event]bool)
	for {
		select {
		case s := <-c.subscribe:
			subs[s] = true

		case s := <-c.unsubscribe:
			delete(subs, s)

		case ev, ok := <-events:
			if !ok {
				// producer closed its event source: nothing further will
				// ever be published, but the channel stays live (and
				// findable) until the application explicitly destroys it.
				events = nil
				continue
			}
			for s := range subs {
				select {
				case s <- ev:
				default:
					// slow subscriber; spec.md's listeners count and
					// broadcast semantics are about who observes the
					// publish while WAITING, not about guaranteed
					// buffering for a laggard, so we drop rather than
					// block the whole channel.
				}
			}

		case <-c.destroyed:
			return
		}
	}
}

// ID returns the channel's opaque id.
func (c *Channel) ID() string { return c.id }

// Subscribe registers a new waiter queue that will receive every event
// published to this channel from now on, and returns a cancel func the
// waiter MUST call when it stops watching (on wake, on timeout, or on
// cancellation) so the broadcaster stops holding a reference to it.
func (c *Channel) Subscribe() (<-chan Event, func()) {
	sub := make(chan Event, subscriberBuf)
	select {
	case c.subscribe <- sub:
	case <-c.destroyed:
	}
	cancel := func() {
		select {
		case c.unsubscribe <- sub:
		case <-c.destroyed:
		}
	}
	return sub, cancel
}

// ReportOutcome emits one outcome event. Per spec.md §3, an event
// published with no tag never produces an outcomes event, so callers must
// only invoke this for tagged events.
//
// Non-blocking: if the outcomes buffer is saturated because the producer
// stopped reading, the outcome is dropped rather than stalling the
// response finalizer that calls this.
func (c *Channel) ReportOutcome(delivered bool, tag int64) {
	select {
	case c.outcomes <- Outcome{Delivered: delivered, Tag: tag}:
	default:
	}
}

// ObserveOutcomes returns the stream of delivery outcomes for tagged
// events published on this channel.
func (c *Channel) ObserveOutcomes() <-chan Outcome { return c.outcomes }

// AddListeners atomically adjusts the listeners count; delta may be
// negative. Safe for concurrent use, never blocks.
func (c *Channel) AddListeners(delta int64) {
	atomic.AddInt64(&c.listeners, delta)
}

// Listeners returns the current count of HTTP requests actively waiting on
// this channel.
func (c *Channel) Listeners() int64 {
	return atomic.LoadInt64(&c.listeners)
}

// Done is closed when the channel is destroyed.
func (c *Channel) Done() <-chan struct{} { return c.destroyed }
