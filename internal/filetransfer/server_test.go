package filetransfer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/gigi-net/gigi-core/internal/proto/transfer"
	"github.com/gigi-net/gigi-core/internal/shareindex"
)

func mustShare(t *testing.T, idx *shareindex.Index, path string, content []byte) string {
	t.Helper()
	sum := blake3.Sum256(content)
	hasher := func(shareindex.SourceRef) (string, int64, error) {
		return fmt.Sprintf("%x", sum[:]), int64(len(content)), nil
	}
	code, err := idx.ShareFile(shareindex.PathSource(path), filepath.Base(path), hasher, time.Unix(1700000000, 0))
	require.NoError(t, err)
	return code
}

func memChunkReader(content []byte) ChunkReader {
	return func(ref shareindex.SourceRef, offset int64, size int) ([]byte, error) {
		end := offset + int64(size)
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		return content[offset:end], nil
	}
}

func TestHandleRequest_GetFileInfo_Known(t *testing.T) {
	idx, err := shareindex.Open(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)
	content := bytes.Repeat([]byte{0xAB}, 10)
	code := mustShare(t, idx, "/tmp/f.bin", content)

	srv := NewServer(idx)
	resp := srv.HandleRequest(transfer.Request{GetFileInfo: &transfer.GetFileInfoRequest{ShareCode: code}})
	require.NotNil(t, resp.FileInfo)
	require.NotNil(t, resp.FileInfo.Descriptor)
	require.Equal(t, code, resp.FileInfo.Descriptor.ID)
	require.Equal(t, int64(10), resp.FileInfo.Descriptor.Size)
}

func TestHandleRequest_GetFileInfo_Unknown(t *testing.T) {
	idx, err := shareindex.Open(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)
	srv := NewServer(idx)

	resp := srv.HandleRequest(transfer.Request{GetFileInfo: &transfer.GetFileInfoRequest{ShareCode: "ffffffff"}})
	require.NotNil(t, resp.FileInfo)
	require.Nil(t, resp.FileInfo.Descriptor)
	require.Nil(t, resp.Error)
}

func TestHandleRequest_GetChunk_HashesPayload(t *testing.T) {
	idx, err := shareindex.Open(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)
	content := bytes.Repeat([]byte{0x42}, transfer.ChunkSize+10)
	code := mustShare(t, idx, "/tmp/f.bin", content)

	srv := NewServer(idx)
	srv.SetChunkReader(memChunkReader(content))

	resp := srv.HandleRequest(transfer.Request{GetChunk: &transfer.GetChunkRequest{ShareCode: code, ChunkIndex: 1}})
	require.NotNil(t, resp.Chunk)
	require.NotNil(t, resp.Chunk.Payload)
	require.Len(t, resp.Chunk.Payload.Data, 10, "final chunk is shorter than ChunkSize")

	sum := blake3.Sum256(resp.Chunk.Payload.Data)
	require.Equal(t, fmt.Sprintf("%x", sum[:]), resp.Chunk.Payload.Hash)
}

func TestHandleRequest_GetChunk_OutOfRange(t *testing.T) {
	idx, err := shareindex.Open(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)
	content := []byte("small")
	code := mustShare(t, idx, "/tmp/f.bin", content)

	srv := NewServer(idx)
	srv.SetChunkReader(memChunkReader(content))

	resp := srv.HandleRequest(transfer.Request{GetChunk: &transfer.GetChunkRequest{ShareCode: code, ChunkIndex: 5}})
	require.Nil(t, resp.Chunk)
	require.NotNil(t, resp.Error)
}

func TestHandleRequest_GetChunk_RevokedIsError(t *testing.T) {
	idx, err := shareindex.Open(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)
	content := []byte("small")
	code := mustShare(t, idx, "/tmp/f.bin", content)
	require.NoError(t, idx.UnshareFile(code))

	srv := NewServer(idx)
	resp := srv.HandleRequest(transfer.Request{GetChunk: &transfer.GetChunkRequest{ShareCode: code, ChunkIndex: 0}})
	require.NotNil(t, resp.Error)
}

func TestHandleRequest_ListFiles_OmitsRevoked(t *testing.T) {
	idx, err := shareindex.Open(filepath.Join(t.TempDir(), "shares.json"))
	require.NoError(t, err)
	code1 := mustShare(t, idx, "/tmp/a.bin", []byte("aaa"))
	code2 := mustShare(t, idx, "/tmp/b.bin", []byte("bbb"))
	require.NoError(t, idx.UnshareFile(code2))

	srv := NewServer(idx)
	resp := srv.HandleRequest(transfer.Request{ListFiles: &struct{}{}})
	require.NotNil(t, resp.FileList)
	require.Len(t, resp.FileList.Files, 1)
	require.Equal(t, code1, resp.FileList.Files[0].ID)
}
