package events

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/tenant-realtime/models"
)

func TestEncodeProducesDataFrame(t *testing.T) {
	env := MustNew(Org("1"), NotificationMarkedRead{ID: 7})

	frame, err := Encode(env)
	require.NoError(t, err)

	s := string(frame)
	assert.True(t, strings.HasPrefix(s, "data: {"))
	assert.True(t, strings.HasSuffix(s, "}\n\n"))
	assert.Contains(t, s, `"event":"notification:read"`)
	assert.Contains(t, s, `"data":{"id":7}`)
}

func TestDecoderRoundTripsEventsAndKeepalives(t *testing.T) {
	created := NotificationCreated{Notification: models.Notification{
		ID: 3, OrgID: "1", Title: "Reply", Message: "Support answered", Type: models.NotificationInfo, Status: models.NotificationUnread,
	}}
	a, err := Encode(MustNew(Org("1"), created))
	require.NoError(t, err)
	b, err := Encode(MustNew(Global(), Alert{Severity: SeverityWarning, Message: "db slow"}))
	require.NoError(t, err)

	stream := ": connected\n\n" + string(a) + string(EncodeKeepalive("heartbeat")) + string(b)
	dec := NewDecoder(strings.NewReader(stream))

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameKeepalive, f.Kind)
	assert.Equal(t, "connected", f.Comment)

	f, err = dec.Next()
	require.NoError(t, err)
	require.Equal(t, FrameEvent, f.Kind)
	assert.Equal(t, NotificationNew, f.Envelope.Event)
	got, ok := f.Envelope.Data.(NotificationCreated)
	require.True(t, ok)
	assert.Equal(t, uint(3), got.ID)
	assert.Equal(t, "Reply", got.Title)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameKeepalive, f.Kind)

	f, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, SystemAlert, f.Envelope.Event)
	assert.Equal(t, Alert{Severity: SeverityWarning, Message: "db slow"}, f.Envelope.Data)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderDropsMalformedFrameAndContinues(t *testing.T) {
	good, err := Encode(MustNew(Org("1"), NotificationMarkedRead{ID: 1}))
	require.NoError(t, err)

	stream := "data: {not json\n\n" + string(good)
	dec := NewDecoder(strings.NewReader(stream))

	_, err = dec.Next()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedEvent))

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, NotificationRead, f.Envelope.Event)
}

func TestUnmarshalRejectsPayloadThatDoesNotMatchEvent(t *testing.T) {
	cases := map[string]string{
		"unknown event":  `{"event":"order:update","data":{}}`,
		"missing name":   `{"data":{"id":1}}`,
		"wrong shape":    `{"event":"notification:read","data":{"id":"seven"}}`,
		"failed checks":  `{"event":"notification:read","data":{}}`,
		"bad severity":   `{"event":"system:alert","data":{"severity":"meh","message":"x"}}`,
		"empty snapshot": `{"event":"metrics:update","data":{"computedAt":"2026-01-01T00:00:00Z"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestDecoderJoinsMultilineData(t *testing.T) {
	stream := "event: ignored\ndata: {\"event\":\"notification:read\",\ndata: \"data\":{\"id\":9}}\n\n"
	f, err := NewDecoder(strings.NewReader(stream)).Next()
	require.NoError(t, err)
	assert.Equal(t, NotificationMarkedRead{ID: 9}, f.Envelope.Data)
}

func TestNewEnforcesEventScopes(t *testing.T) {
	_, err := New(Org("1"), Alert{Severity: SeverityInfo, Message: "x"})
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = New(Global(), NotificationMarkedRead{ID: 1})
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = New(Scope{Kind: ScopeOrg}, NotificationMarkedRead{ID: 1})
	assert.ErrorIs(t, err, ErrInvalidScope)

	env, err := New(User("1", "u1"), NotificationCreated{Notification: models.Notification{ID: 1, OrgID: "1", Message: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, NotificationNew, env.Event)
	assert.False(t, env.Ts.IsZero())
}

func TestScopeReceives(t *testing.T) {
	org1, org2 := Org("1"), Org("2")
	alice := User("1", "alice")

	assert.True(t, Global().Receives(org2))
	assert.True(t, org1.Receives(Global()))
	assert.True(t, org1.Receives(org1))
	assert.False(t, org1.Receives(org2))
	assert.True(t, org1.Receives(alice))
	assert.True(t, alice.Receives(org1))
	assert.False(t, alice.Receives(User("1", "bob")))
	assert.False(t, User("2", "alice").Receives(org1))
}
