package group

import (
	"encoding/json"
	"testing"

	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_JSONShape(t *testing.T) {
	env := Envelope{
		SenderNickname: "alice",
		Content:        "/download abcd1234 \U0001F5BC",
		Timestamp:      1700000000,
		IsImage:        true,
		Filename:       "photo.jpg",
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, env, decoded)
	require.Nil(t, decoded.Data, "file-share broadcasts must never carry raw data")
}

func TestMessageIDFn_ContentAddressed(t *testing.T) {
	a := &pb.Message{Data: []byte("hello")}
	b := &pb.Message{Data: []byte("hello")}
	c := &pb.Message{Data: []byte("world")}

	require.Equal(t, messageIDFn(a), messageIDFn(b))
	require.NotEqual(t, messageIDFn(a), messageIDFn(c))
}
