package direct

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip_Text(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Text: &Text{Message: "hello"}}
	require.NoError(t, WriteRequest(&buf, req))

	out, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.NotNil(t, out.Text)
	require.Equal(t, "hello", out.Text.Message)
	require.Nil(t, out.FileShare)
	require.Nil(t, out.ShareGroup)
}

func TestRequestRoundTrip_FileShare(t *testing.T) {
	var buf bytes.Buffer
	req := Request{FileShare: &FileShare{ShareCode: "abcd1234", Filename: "report.pdf", FileSize: 1024, FileType: "application/pdf"}}
	require.NoError(t, WriteRequest(&buf, req))

	out, err := ReadRequest(&buf)
	require.NoError(t, err)
	require.Equal(t, req.FileShare.ShareCode, out.FileShare.ShareCode)
}
