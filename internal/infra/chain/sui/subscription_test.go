package sui

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeRequest(t *testing.T) {
	data, err := json.Marshal(SubscribeRequest("0xP", "sui_red_envelope"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":1,"method":"suix_subscribeEvent","params":[{"MoveModule":{"package":"0xP","module":"sui_red_envelope"}}]}`,
		string(data))
}

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"jsonrpc":"2.0","method":"suix_subscribeEvent","params":{"subscription":7,"result":{"id":{"txDigest":"D1","eventSeq":"0"}}}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameNotification, frame.Kind)
	assert.JSONEq(t, `{"id":{"txDigest":"D1","eventSeq":"0"}}`, string(frame.Payload))

	frame, err = ParseFrame([]byte(`{"jsonrpc":"2.0","id":1,"result":3561}`))
	require.NoError(t, err)
	assert.Equal(t, FrameConfirmation, frame.Kind)

	frame, err = ParseFrame([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad filter"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameError, frame.Kind)
}

func TestParseFrame_Rejects(t *testing.T) {
	_, err := ParseFrame([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseFrame([]byte(`{"jsonrpc":"2.0"}`))
	assert.ErrorIs(t, err, ErrUnrecognizedFrame)

	_, err = ParseFrame([]byte(`{"method":"suix_subscribeEvent","params":{"subscription":7}}`))
	assert.ErrorIs(t, err, ErrUnrecognizedFrame)
}
