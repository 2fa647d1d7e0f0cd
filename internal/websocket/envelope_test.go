package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"join_room","room_id":"general","user_id":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, TypeJoinRoom, env.Type)
	assert.Equal(t, "general", env.RoomID)
	assert.Equal(t, "u1", env.UserID)
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeEnvelope([]byte(`{"room_id":"general"}`))
	assert.Error(t, err, "missing type is malformed")
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	data, err := errorEnvelope("boom").Encode()
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, map[string]interface{}{"type": "error", "text": "boom"}, raw)
}

// Pins the closed set of inbound command kinds: adding a handler without
// extending this list (or vice versa) fails the build of the protocol.
func TestRouterCoversAllCommandKinds(t *testing.T) {
	router := NewRouter(NewPresenceTracker(), NewRoomHub(16), &fakeDirectory{}, &fakeStore{})

	want := []EnvelopeType{
		TypeGetMessages,
		TypeGetOnlineUsers,
		TypeJoinRoom,
		TypeLeaveRoom,
		TypeSendMessage,
	}
	assert.Equal(t, want, router.SupportedCommandKinds())
}
