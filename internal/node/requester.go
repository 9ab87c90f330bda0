package node

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/gigi-net/gigi-core/internal/proto/transfer"
)

// streamRequester implements downloader.Requester by opening a fresh
// "/file/1.0.0" stream per RPC (§4.I, §4.J), matching the one
// request/response per stream shape internal/filetransfer.Server
// expects on the other end.
type streamRequester struct {
	host host.Host
}

func (r *streamRequester) call(ctx context.Context, peerIDStr string, req transfer.Request) (transfer.Response, error) {
	pid, err := peer.Decode(peerIDStr)
	if err != nil {
		return transfer.Response{}, fmt.Errorf("node: invalid peer id: %w", err)
	}

	s, err := r.host.NewStream(ctx, pid, protocol.ID(transfer.ProtocolID))
	if err != nil {
		return transfer.Response{}, fmt.Errorf("node: open transfer stream: %w", err)
	}
	defer s.Close()

	if err := transfer.WriteRequest(s, req); err != nil {
		return transfer.Response{}, fmt.Errorf("node: write transfer request: %w", err)
	}
	resp, err := transfer.ReadResponse(bufio.NewReader(s))
	if err != nil {
		return transfer.Response{}, fmt.Errorf("node: read transfer response: %w", err)
	}
	if resp.Error != nil {
		return transfer.Response{}, errors.New(*resp.Error)
	}
	return resp, nil
}

func (r *streamRequester) GetFileInfo(ctx context.Context, peerID, shareCode string) (*transfer.FileDescriptor, error) {
	resp, err := r.call(ctx, peerID, transfer.Request{GetFileInfo: &transfer.GetFileInfoRequest{ShareCode: shareCode}})
	if err != nil {
		return nil, err
	}
	if resp.FileInfo == nil {
		return nil, nil
	}
	return resp.FileInfo.Descriptor, nil
}

func (r *streamRequester) GetChunk(ctx context.Context, peerID, shareCode string, chunkIndex int) (*transfer.ChunkPayload, error) {
	resp, err := r.call(ctx, peerID, transfer.Request{GetChunk: &transfer.GetChunkRequest{ShareCode: shareCode, ChunkIndex: chunkIndex}})
	if err != nil {
		return nil, err
	}
	if resp.Chunk == nil {
		return nil, nil
	}
	return resp.Chunk.Payload, nil
}

// ListFiles requests the peer's full share listing over a fresh stream.
func (r *streamRequester) ListFiles(ctx context.Context, peerID string) ([]transfer.FileDescriptor, error) {
	resp, err := r.call(ctx, peerID, transfer.Request{ListFiles: &struct{}{}})
	if err != nil {
		return nil, err
	}
	if resp.FileList == nil {
		return nil, nil
	}
	return resp.FileList.Files, nil
}
