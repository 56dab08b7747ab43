package comet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Wire-level constants (spec.md §4.3), kept exact.
const (
	channelSep   = "\n"
	fieldSep     = ":"
	endedSentinel = "ENDED_CHANNEL"
	regParam     = "registration"
	requestContentType  = "application/x-ocsigen-comet"
	responseContentType = "text/html"
)

// ErrBadRequest is returned by Decode for a malformed request body (bad
// URL encoding, or a failed body read). Handler answers it with the same
// 400 response it gives the "both active and ended are empty" branch
// (spec.md §7).
var ErrBadRequest = errors.New("comet: bad request")

// ErrInputTooLarge is returned by Decode when reading the request body
// exceeds the host's per-request size cap.
var ErrInputTooLarge = errors.New("comet: input too large")

// maxBodyBytes bounds how much of the request body Decode will read before
// giving up with ErrInputTooLarge. The real cap is the host's to enforce
// (spec.md §1); this is the standalone net/http host's version of that
// cap (SPEC_FULL.md §6).
const maxBodyBytes = 1 << 20 // 1 MiB

// Subscription is the decoded form of a client's registration request
// (spec.md §3): ids that resolved to a live channel, and ids that did not.
// Order matches the order the ids appeared in the request.
type Subscription struct {
	Active []*Channel
	Ended  []string
}

// Empty reports whether both Active and Ended are empty, the condition
// Handler treats as a bad request (spec.md §4.4).
func (s Subscription) Empty() bool {
	return len(s.Active) == 0 && len(s.Ended) == 0
}

// Decode reads a URL-form-encoded POST body from body, extracts every
// occurrence of the "registration" parameter (concatenating their
// newline-separated id lists in order), and resolves each id against reg.
// Ids that resolve become part of Active; ids that don't become part of
// Ended. Other form parameters are ignored (spec.md §4.3).
func Decode(body io.Reader, reg *Registry) (Subscription, error) {
	limited := io.LimitReader(body, maxBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(raw) > maxBodyBytes {
		return Subscription{}, ErrInputTooLarge
	}
	if len(raw) == 0 {
		return Subscription{}, nil
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return Subscription{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var sub Subscription
	for _, occurrence := range values[regParam] {
		for _, id := range strings.Split(occurrence, channelSep) {
			if id == "" {
				continue
			}
			ch, err := reg.Find(id)
			if errors.Is(err, ErrUnknownChannel) {
				sub.Ended = append(sub.Ended, id)
				continue
			}
			sub.Active = append(sub.Active, ch)
		}
	}
	return sub, nil
}

// DeliveredEvent is one (channel, payload, tag?) tuple chosen to appear in
// a response body (spec.md §4.4's "batch of events").
type DeliveredEvent struct {
	ChannelID string
	Payload   []byte
	Tag       Tag
}

// Encode formats a response body from the ended ids (ids that did not
// resolve to a live channel) and, if the wait phase produced a batch of
// events, those events. Passing events == nil means "no batch" (the
// timeout arm won); passing a non-nil (possibly empty in practice never
// happens, but handled) slice means "the event arm won."
//
// The concatenation of ended-notices and event-entries with a single ":"
// when both are non-empty is an inherited wire quirk (spec.md §4.3, §9):
// kept bit-exact rather than "fixed" to a newline, since downstream
// clients may already depend on it.
func Encode(ended []string, events []DeliveredEvent) []byte {
	endedBody := encodeEnded(ended)
	if events == nil {
		return endedBody
	}

	eventsBody := encodeEvents(events)
	switch {
	case len(ended) == 0:
		return eventsBody
	case len(events) == 0:
		return endedBody
	default:
		var buf bytes.Buffer
		buf.Write(endedBody)
		buf.WriteString(fieldSep)
		buf.Write(eventsBody)
		return buf.Bytes()
	}
}

func encodeEnded(ended []string) []byte {
	var buf bytes.Buffer
	for i, id := range ended {
		if i > 0 {
			buf.WriteString(channelSep)
		}
		buf.WriteString(id)
		buf.WriteString(fieldSep)
		buf.WriteString(endedSentinel)
	}
	return buf.Bytes()
}

func encodeEvents(events []DeliveredEvent) []byte {
	var buf bytes.Buffer
	for i, ev := range events {
		if i > 0 {
			buf.WriteString(channelSep)
		}
		buf.WriteString(ev.ChannelID)
		buf.WriteString(fieldSep)
		buf.WriteString(percentEncode(ev.Payload))
	}
	return buf.Bytes()
}

// percentEncode applies standard percent-encoding to payload, except that
// spaces are encoded as "%20" rather than "+" (spec.md §4.3's url_encode).
// url.QueryEscape gives us everything else query-escaping does (including
// escaping ':' and '\n', which matters since those are our own field and
// channel separators) except its space handling, so we escape with it and
// then correct the one divergent case.
func percentEncode(payload []byte) string {
	return strings.ReplaceAll(url.QueryEscape(string(payload)), "+", "%20")
}
