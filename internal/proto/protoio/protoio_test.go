package protoio

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	type msg struct {
		A string `cbor:"a"`
		B int    `cbor:"b"`
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, msg{A: "x", B: 7}))

	var out msg
	require.NoError(t, Read(&buf, &out))
	require.Equal(t, "x", out.A)
	require.Equal(t, 7, out.B)
}

func TestWriteReadTwoMessagesOnSameStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, 1))
	require.NoError(t, Write(&buf, 2))

	var a, b int
	require.NoError(t, Read(&buf, &a))
	require.NoError(t, Read(&buf, &b))
	require.Equal(t, 1, a)
	require.Equal(t, 2, b)
}
