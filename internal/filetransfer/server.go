// Package filetransfer implements the responding side of the
// "/file/1.0.0" protocol (§4.I): answering GetFileInfo, GetChunk, and
// ListFiles requests against a shareindex.Index.
package filetransfer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/gigi-net/gigi-core/internal/proto/transfer"
	"github.com/gigi-net/gigi-core/internal/shareindex"
)

// ChunkReader reads up to size bytes of ref's content starting at
// offset. The default implementation opens local paths directly;
// platform URIs require an injected reader, since direct file I/O is
// forbidden on some platforms (§6).
type ChunkReader func(ref shareindex.SourceRef, offset int64, size int) ([]byte, error)

// LocalChunkReader is the default ChunkReader for filesystem paths.
// It returns ErrURIUnsupported for URI sources.
func LocalChunkReader(ref shareindex.SourceRef, offset int64, size int) ([]byte, error) {
	if ref.IsURI() {
		return nil, ErrURIUnsupported
	}
	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// ErrURIUnsupported is returned by LocalChunkReader for a platform-URI
// source; callers serving such shares must call SetChunkReader.
var ErrURIUnsupported = errors.New("filetransfer: platform URI source needs an injected chunk reader")

// Server answers inbound "/file/1.0.0" requests against an Index.
type Server struct {
	Index     *shareindex.Index
	ReadChunk ChunkReader
}

// NewServer builds a Server backed by idx, defaulting to
// LocalChunkReader for chunk reads.
func NewServer(idx *shareindex.Index) *Server {
	return &Server{Index: idx, ReadChunk: LocalChunkReader}
}

// SetChunkReader installs fn as the chunk-read callback, e.g. to
// delegate platform-URI reads to the GUI's resolver.
func (s *Server) SetChunkReader(fn ChunkReader) {
	s.ReadChunk = fn
}

// HandleRequest dispatches req to the matching handler and returns the
// response to write back on the stream.
func (s *Server) HandleRequest(req transfer.Request) transfer.Response {
	switch {
	case req.GetFileInfo != nil:
		return s.handleFileInfo(req.GetFileInfo.ShareCode)
	case req.GetChunk != nil:
		return s.handleGetChunk(req.GetChunk.ShareCode, req.GetChunk.ChunkIndex)
	case req.ListFiles != nil:
		return s.handleListFiles()
	default:
		return transfer.ErrorResponse("unrecognized request")
	}
}

// HandleStream reads a single request from rw, answers it, and writes
// the response back. Each stream carries exactly one request/response.
func (s *Server) HandleStream(rw io.ReadWriter) error {
	req, err := transfer.ReadRequest(rw)
	if err != nil {
		return fmt.Errorf("filetransfer: read request: %w", err)
	}
	resp := s.HandleRequest(req)
	if err := transfer.WriteResponse(rw, resp); err != nil {
		return fmt.Errorf("filetransfer: write response: %w", err)
	}
	return nil
}

func (s *Server) handleFileInfo(shareCode string) transfer.Response {
	entry, err := s.Index.Get(shareCode)
	if err != nil {
		// Unknown or revoked: None, not an Error (§4.I).
		return transfer.Response{FileInfo: &transfer.FileInfoResponse{}}
	}
	return transfer.Response{FileInfo: &transfer.FileInfoResponse{Descriptor: descriptorOf(entry)}}
}

func (s *Server) handleGetChunk(shareCode string, chunkIndex int) transfer.Response {
	entry, err := s.Index.Get(shareCode)
	if errors.Is(err, shareindex.ErrNotFound) {
		return transfer.Response{Chunk: &transfer.ChunkResponse{}}
	}
	if errors.Is(err, shareindex.ErrRevoked) {
		return transfer.ErrorResponse("share revoked")
	}
	if err != nil {
		return transfer.ErrorResponse(err.Error())
	}
	if chunkIndex < 0 || chunkIndex >= entry.ChunkCount {
		return transfer.ErrorResponse(fmt.Sprintf("chunk index %d out of range", chunkIndex))
	}

	offset := int64(chunkIndex) * transfer.ChunkSize
	size := transfer.ChunkSize
	if remaining := entry.Size - offset; remaining < int64(size) {
		size = int(remaining)
	}

	data, err := s.ReadChunk(entry.Source, offset, size)
	if err != nil {
		return transfer.ErrorResponse(fmt.Sprintf("chunk read failed: %v", err))
	}

	sum := blake3.Sum256(data)
	payload := &transfer.ChunkPayload{
		ShareCode:  shareCode,
		ChunkIndex: chunkIndex,
		Data:       data,
		Hash:       fmt.Sprintf("%x", sum[:]),
	}
	return transfer.Response{Chunk: &transfer.ChunkResponse{Payload: payload}}
}

func (s *Server) handleListFiles() transfer.Response {
	entries := s.Index.ListSharedFiles()
	files := make([]transfer.FileDescriptor, 0, len(entries))
	for _, e := range entries {
		files = append(files, *descriptorOf(e))
	}
	return transfer.Response{FileList: &transfer.FileListResponse{Files: files}}
}

func descriptorOf(e shareindex.ShareEntry) *transfer.FileDescriptor {
	return &transfer.FileDescriptor{
		ID:         e.ShareCode,
		Name:       e.Filename,
		Size:       e.Size,
		Hash:       e.Hash,
		ChunkCount: e.ChunkCount,
		CreatedAt:  e.CreatedAt.Unix(),
	}
}
