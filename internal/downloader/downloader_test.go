package downloader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/gigi-net/gigi-core/internal/proto/transfer"
)

type fakeRequester struct {
	info    *transfer.FileDescriptor
	infoErr error
	chunkFn func(idx int) (*transfer.ChunkPayload, error)
}

func (f *fakeRequester) GetFileInfo(ctx context.Context, peerID, shareCode string) (*transfer.FileDescriptor, error) {
	return f.info, f.infoErr
}

func (f *fakeRequester) GetChunk(ctx context.Context, peerID, shareCode string, idx int) (*transfer.ChunkPayload, error) {
	return f.chunkFn(idx)
}

func chunkOf(content []byte, idx int) []byte {
	start := idx * transfer.ChunkSize
	end := start + transfer.ChunkSize
	if end > len(content) {
		end = len(content)
	}
	return content[start:end]
}

func validChunkFn(shareCode string, content []byte) func(int) (*transfer.ChunkPayload, error) {
	return func(idx int) (*transfer.ChunkPayload, error) {
		data := chunkOf(content, idx)
		sum := blake3.Sum256(data)
		return &transfer.ChunkPayload{
			ShareCode:  shareCode,
			ChunkIndex: idx,
			Data:       data,
			Hash:       hex.EncodeToString(sum[:]),
		}, nil
	}
}

func drainUntilTerminal(t *testing.T, events chan Event, timeout time.Duration) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Kind == FileDownloadCompleted || ev.Kind == FileDownloadFailed {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for terminal event, got %d events", len(got))
			return got
		}
	}
}

func chunkCount(size int) int {
	if size == 0 {
		return 0
	}
	return (size + transfer.ChunkSize - 1) / transfer.ChunkSize
}

func TestDownload_EndToEnd_AssemblesFile(t *testing.T) {
	content := bytes.Repeat([]byte{0x11, 0x22, 0x33}, transfer.ChunkSize) // > 2 chunks
	sum := sha256.Sum256(content)
	shareCode := "abcd1234"

	req := &fakeRequester{
		info: &transfer.FileDescriptor{
			ID:         shareCode,
			Name:       "report.pdf",
			Size:       int64(len(content)),
			Hash:       hex.EncodeToString(sum[:]),
			ChunkCount: chunkCount(len(content)),
		},
		chunkFn: validChunkFn(shareCode, content),
	}

	outDir := t.TempDir()
	mgr := NewManager(outDir, req)
	mgr.Download(context.Background(), "peerA", "alice", shareCode)

	events := drainUntilTerminal(t, mgr.Events, 5*time.Second)
	require.Equal(t, FileDownloadStarted, events[0].Kind)

	last := events[len(events)-1]
	require.Equal(t, FileDownloadCompleted, last.Kind)

	prevDownloaded := -1
	for _, ev := range events {
		if ev.Kind == FileDownloadProgress {
			require.GreaterOrEqual(t, ev.DownloadedChunks, prevDownloaded)
			prevDownloaded = ev.DownloadedChunks
		}
	}

	out, err := os.ReadFile(last.Path)
	require.NoError(t, err)
	require.Equal(t, content, out)
	require.Equal(t, filepath.Join(outDir, "report.pdf"), last.Path)
}

func TestDownload_ChunkHashMismatch_EmitsFailed(t *testing.T) {
	content := bytes.Repeat([]byte{0xAA}, transfer.ChunkSize+10)
	sum := sha256.Sum256(content)
	shareCode := "deadbeef"

	goodChunk := validChunkFn(shareCode, content)
	req := &fakeRequester{
		info: &transfer.FileDescriptor{
			ID:         shareCode,
			Name:       "movie.mkv",
			Size:       int64(len(content)),
			Hash:       hex.EncodeToString(sum[:]),
			ChunkCount: chunkCount(len(content)),
		},
		chunkFn: func(idx int) (*transfer.ChunkPayload, error) {
			payload, _ := goodChunk(idx)
			if idx == 1 {
				// flip a byte in the data without updating the announced hash
				corrupted := append([]byte(nil), payload.Data...)
				corrupted[0] ^= 0xFF
				payload.Data = corrupted
			}
			return payload, nil
		},
	}

	mgr := NewManager(t.TempDir(), req)
	mgr.Download(context.Background(), "peerA", "alice", shareCode)

	events := drainUntilTerminal(t, mgr.Events, 5*time.Second)
	last := events[len(events)-1]
	require.Equal(t, FileDownloadFailed, last.Kind)
	require.Contains(t, last.Error, "hash mismatch")

	for _, ev := range events {
		require.NotEqual(t, FileDownloadCompleted, ev.Kind)
	}
}

func TestDownload_FileInfoNone_EmitsFailed(t *testing.T) {
	req := &fakeRequester{info: nil, infoErr: nil}
	mgr := NewManager(t.TempDir(), req)
	mgr.Download(context.Background(), "peerA", "alice", "ffffffff")

	events := drainUntilTerminal(t, mgr.Events, 5*time.Second)
	require.Equal(t, FileDownloadFailed, events[len(events)-1].Kind)
}

func TestResolveOutputName_Collision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o600))

	name, err := resolveOutputName(dir, "a.txt")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a_1.txt"), name)
}

func TestCleanupDownloads_DropsTerminalOnly(t *testing.T) {
	content := []byte("hello world")
	sum := sha256.Sum256(content)
	shareCode := "cccccccc"
	req := &fakeRequester{
		info: &transfer.FileDescriptor{
			ID: shareCode, Name: "hi.txt", Size: int64(len(content)),
			Hash: hex.EncodeToString(sum[:]), ChunkCount: 1,
		},
		chunkFn: validChunkFn(shareCode, content),
	}
	mgr := NewManager(t.TempDir(), req)
	mgr.Download(context.Background(), "peerA", "alice", shareCode)
	drainUntilTerminal(t, mgr.Events, 5*time.Second)

	require.Equal(t, 1, mgr.CleanupDownloads())
	require.Empty(t, mgr.GetActiveDownloads())
}
