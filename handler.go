package comet

import (
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/cometd/engine/internal/log"
)

// emptyRegistrationBody is the fixed response body spec.md §4.4 names
// verbatim for the "both active and ended are empty" branch.
const emptyRegistrationBody = "Empty or incorrect registration"

// Handler implements the per-request algorithm of spec.md §4.4: decode the
// subscription, branch on it, and either respond immediately or enter the
// wait phase (merge all subscribed channels' broadcasts against a
// timeout), then encode and write the response.
//
// Handler never creates or owns channels; it only looks them up through
// Registry via Decode. This mirrors the teacher's connectionHandler
// (connection.go), which also only registers/unregisters against a hub it
// does not own.
type Handler struct {
	Registry *Registry
	Config   Config
	Metrics  *Metrics
	Log      log.Logger
}

// NewHandler builds a Handler. A nil logger defaults to discarding.
func NewHandler(reg *Registry, cfg Config, metrics *Metrics, logger log.Logger) *Handler {
	if logger.GetSink() == nil {
		logger = log.Discard()
	}
	return &Handler{Registry: reg, Config: cfg, Metrics: metrics, Log: logger}
}

// Handles reports whether this extension should process r, per spec.md
// §4.4's entry-point dispatch: only requests whose content-type top-level/
// subtype pair is exactly "application/x-ocsigen-comet". A host composing
// multiple extensions should call this before ServeHTTP and fall through
// to the next handler on false.
func (h *Handler) Handles(r *http.Request) bool {
	ctype, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return ctype == requestContentType
}

// ServeHTTP implements the full request algorithm.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := Decode(r.Body, h.Registry)
	if err != nil {
		h.Log.Error(err, "comet: decode failed", "remote", r.RemoteAddr)
		h.writeDecodeError(w, err)
		return
	}

	switch {
	case sub.Empty():
		h.respondBadRequest(w)

	case len(sub.Active) == 0:
		h.respond(w, http.StatusOK, Encode(sub.Ended, nil))

	default:
		h.waitAndRespond(w, r, sub)
	}
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInputTooLarge):
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrBadRequest):
		h.respondBadRequest(w)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) respondBadRequest(w http.ResponseWriter) {
	w.Header().Set("Content-Type", responseContentType)
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(emptyRegistrationBody))
}

func (h *Handler) respond(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", responseContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// channelEvent pairs a broadcast Event with the Channel it arrived on, so
// the merge can later encode "channel:payload" and report outcomes back to
// the right owner.
type channelEvent struct {
	ch *Channel
	ev Event
}

// waitAndRespond implements spec.md §4.4's wait phase: subscribe to every
// active channel, race the merged broadcast against the configured
// timeout (and the request's own cancellation), decrement listeners the
// instant a winner is decided, then encode and write the response and
// finally report delivery outcomes for any tagged events it contained.
func (h *Handler) waitAndRespond(w http.ResponseWriter, r *http.Request, sub Subscription) {
	type subscription struct {
		ch     *Channel
		events <-chan Event
		cancel func()
	}

	// Subscribe before counting: Subscribe blocks until the broadcaster's
	// run loop has accepted the registration, so Listeners() only reports a
	// waiter once it is actually in the broadcast set (spec.md §5).
	subs := make([]subscription, len(sub.Active))
	for i, ch := range sub.Active {
		events, cancel := ch.Subscribe()
		ch.AddListeners(1)
		subs[i] = subscription{ch: ch, events: events, cancel: cancel}
	}
	h.Metrics.addWaiters(len(subs))

	// Fan-in: each subscribed channel gets its own forwarding goroutine
	// feeding one aggregate channel, the systems-Go substitute spec.md §9
	// calls for in place of the source's reactive merge. The aggregate
	// channel is sized to the number of subscriptions so a batch of
	// simultaneous publishes (one per channel) never blocks a forwarder.
	aggregate := make(chan channelEvent, len(subs))
	stopForwarding := make(chan struct{})
	for _, s := range subs {
		go func(s subscription) {
			select {
			case ev, ok := <-s.events:
				if ok {
					select {
					case aggregate <- channelEvent{ch: s.ch, ev: ev}:
					case <-stopForwarding:
					}
				}
			case <-stopForwarding:
			}
		}(s)
	}

	timer := time.NewTimer(h.Config.Timeout)
	var batch []channelEvent

	select {
	case first := <-aggregate:
		batch = append(batch, first)
		// Drain anything already queued at this instant: the merge
		// accumulator must capture simultaneous publishes, per spec.md
		// §3/§9, not just the one that won the race.
	drain:
		for {
			select {
			case more := <-aggregate:
				batch = append(batch, more)
			default:
				break drain
			}
		}

	case <-timer.C:
		// timeout: batch stays nil, meaning "events absent" to Encode.

	case <-r.Context().Done():
		// client disconnected mid-wait; nothing to write, but listener
		// counts and forwarders must still be torn down below.
	}

	timer.Stop()
	close(stopForwarding)
	for _, s := range subs {
		s.cancel()
		s.ch.AddListeners(-1)
	}
	h.Metrics.addWaiters(-len(subs))

	if r.Context().Err() != nil {
		// Connection already gone; writing would be a no-op at best and
		// an error at worst. Outcomes for any tagged events we happened
		// to pick up are reported as failed, matching spec.md §5's
		// cancellation contract.
		for _, ce := range batch {
			if ce.ev.Tag.Set {
				ce.ch.ReportOutcome(false, ce.ev.Tag.Value)
				h.Metrics.reportOutcome(false)
			}
		}
		return
	}

	var events []DeliveredEvent
	if batch != nil {
		events = make([]DeliveredEvent, len(batch))
		for i, ce := range batch {
			events[i] = DeliveredEvent{ChannelID: ce.ch.ID(), Payload: ce.ev.Payload, Tag: ce.ev.Tag}
		}
	}

	body := Encode(sub.Ended, events)
	w.Header().Set("Content-Type", responseContentType)
	w.WriteHeader(http.StatusOK)
	_, writeErr := w.Write(body)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	// Finalizer: outcome reporting happens after the body has been
	// handed to the transport (spec.md §4.3/§9). net/http gives us no
	// asynchronous "transmission confirmed" signal beyond Write
	// returning without error, so per §9's fallback guidance we report
	// delivered on a clean write and failed otherwise.
	delivered := writeErr == nil
	for _, ce := range batch {
		if !ce.ev.Tag.Set {
			continue
		}
		ce.ch.ReportOutcome(delivered, ce.ev.Tag.Value)
		h.Metrics.reportOutcome(delivered)
	}
}
