/*
Package comet implements a server-side Comet endpoint: an HTTP extension
that lets a web server push messages to browser clients over plain
request/response HTTP by holding client POST requests open until data is
available or an idle timeout elapses.

Clients subscribe to named virtual channels by POSTing a newline-separated
list of channel ids under the "registration" form field. Application code
creates channels via a Registry and publishes events to them; the extension
delivers each publication to every request currently waiting on that
channel, and each of those requests replies with a single framed response.

Channels

A Channel is a lightweight in-process pub/sub endpoint identified by an
opaque, cryptographically-random id. The application owns the channel's
lifetime: it creates one from an event source, publishes to it, and calls
Destroy when it is done. The Registry never keeps a channel alive on its
own; once the application destroys a channel, lookups for its id report it
as unknown.

Wire format

The request body is URL-form-encoded; the "registration" parameter (it may
repeat) carries a newline-separated list of ids. The response body is a
newline-separated list of "id:payload" entries for delivered events and
"id:ENDED_CHANNEL" entries for ids that did not resolve to a live channel.
See Encode for the exact grammar, including an inherited wire quirk when both
kinds of entry appear in the same response.

This package intentionally does not implement WebSocket or SSE framing,
cross-process fan-out, or persistence across restarts; see SPEC_FULL.md in
this repository for the full list of non-goals.
*/
package comet
