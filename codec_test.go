package comet

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeResolvesActiveAndEnded(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	defer reg.Shutdown()

	ch, err := reg.Create(make(chan Event))
	require.NoError(t, err)

	form := strings.NewReader("registration=" + ch.ID() + "%0Aunknown-id")
	req := httptest.NewRequest("POST", "/", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sub, err := Decode(req.Body, reg)
	require.NoError(t, err)
	require.Len(t, sub.Active, 1)
	require.Equal(t, ch.ID(), sub.Active[0].ID())
	require.Equal(t, []string{"unknown-id"}, sub.Ended)
}

func TestDecodeConcatenatesMultipleRegistrationParams(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	defer reg.Shutdown()

	form := strings.NewReader("registration=a&registration=b")
	req := httptest.NewRequest("POST", "/", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sub, err := Decode(req.Body, reg)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, sub.Ended)
}

func TestDecodeEmptyBodyYieldsEmptySubscription(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	defer reg.Shutdown()

	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	sub, err := Decode(req.Body, reg)
	require.NoError(t, err)
	require.True(t, sub.Empty())
}

func TestDecodeIgnoresOtherParams(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	defer reg.Shutdown()

	form := strings.NewReader("foo=bar&registration=a")
	req := httptest.NewRequest("POST", "/", form)
	sub, err := Decode(req.Body, reg)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, sub.Ended)
}

func TestDecodeMalformedEncodingIsBadRequest(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	defer reg.Shutdown()

	// '%zz' is an invalid escape: '%' must be followed by two hex digits
	req := httptest.NewRequest("POST", "/", strings.NewReader("registration=%zz"))
	_, err := Decode(req.Body, reg)
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestEncodeEndedOnly(t *testing.T) {
	body := Encode([]string{"x"}, nil)
	require.Equal(t, "x:ENDED_CHANNEL", string(body))
}

func TestEncodeMultipleEnded(t *testing.T) {
	body := Encode([]string{"x", "y"}, nil)
	require.Equal(t, "x:ENDED_CHANNEL\ny:ENDED_CHANNEL", string(body))
}

func TestEncodeEmptyEndedAndNoEvents(t *testing.T) {
	body := Encode(nil, nil)
	require.Empty(t, string(body))
}

func TestEncodeEventsOnly(t *testing.T) {
	events := []DeliveredEvent{{ChannelID: "A", Payload: []byte("hello world")}}
	body := Encode(nil, events)
	require.Equal(t, "A:hello%20world", string(body))
}

func TestEncodeEndedAndEventsConcatenatedWithColon(t *testing.T) {
	events := []DeliveredEvent{{ChannelID: "A", Payload: []byte("x")}}
	body := Encode([]string{"Z"}, events)
	require.Equal(t, "Z:ENDED_CHANNEL:A:x", string(body))
}

func TestPercentEncodeDoesNotUsePlusForSpace(t *testing.T) {
	require.Equal(t, "a%20b", percentEncode([]byte("a b")))
	require.Equal(t, "a%2Bb", percentEncode([]byte("a+b")))
}
