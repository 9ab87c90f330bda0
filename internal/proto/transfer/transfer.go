// Package transfer implements the "/file/1.0.0" request/response
// protocol (§4.I): file-info lookup, chunk reads, and file listing.
package transfer

import (
	"io"

	"github.com/gigi-net/gigi-core/internal/proto/protoio"
)

const ProtocolID = "/file/1.0.0"

// ChunkSize is the protocol-constant chunk size: 256 KiB. The legacy
// 64 KiB chunk size referenced by §6 is not implemented; 256 KiB is
// the only chunk size this codebase produces or accepts.
const ChunkSize = 256 * 1024

// Request is a tagged union over GetFileInfo, GetChunk, and ListFiles.
type Request struct {
	GetFileInfo *GetFileInfoRequest `cbor:"get_file_info,omitempty"`
	GetChunk    *GetChunkRequest    `cbor:"get_chunk,omitempty"`
	ListFiles   *struct{}           `cbor:"list_files,omitempty"`
}

type GetFileInfoRequest struct {
	ShareCode string `cbor:"share_code"`
}

type GetChunkRequest struct {
	ShareCode  string `cbor:"share_code"`
	ChunkIndex int    `cbor:"chunk_index"`
}

// FileDescriptor mirrors §4.I's FileDescriptor: id equals the share-code.
type FileDescriptor struct {
	ID         string `cbor:"id"`
	Name       string `cbor:"name"`
	Size       int64  `cbor:"size"`
	Hash       string `cbor:"hash"`
	ChunkCount int    `cbor:"chunk_count"`
	CreatedAt  int64  `cbor:"created_at"`
}

// ChunkPayload carries one chunk's raw bytes and its BLAKE3 hash.
type ChunkPayload struct {
	ShareCode  string `cbor:"share_code"`
	ChunkIndex int    `cbor:"chunk_index"`
	Data       []byte `cbor:"data"`
	Hash       string `cbor:"hash"`
}

// Response is a tagged union mirroring the three request kinds, plus a
// protocol-level Error for revoked shares or chunk read failures.
type Response struct {
	FileInfo *FileInfoResponse `cbor:"file_info,omitempty"`
	Chunk    *ChunkResponse    `cbor:"chunk,omitempty"`
	FileList *FileListResponse `cbor:"file_list,omitempty"`
	Error    *string           `cbor:"error,omitempty"`
}

// FileInfoResponse wraps Option<FileDescriptor>: Descriptor is nil when
// the share-code is unknown or revoked.
type FileInfoResponse struct {
	Descriptor *FileDescriptor `cbor:"descriptor,omitempty"`
}

// ChunkResponse wraps Option<ChunkPayload>: Payload is nil for an
// unknown share-code; a revoked share or a read failure uses
// Response.Error instead.
type ChunkResponse struct {
	Payload *ChunkPayload `cbor:"payload,omitempty"`
}

type FileListResponse struct {
	Files []FileDescriptor `cbor:"files"`
}

func ErrorResponse(msg string) Response {
	return Response{Error: &msg}
}

func WriteRequest(w io.Writer, req Request) error    { return protoio.Write(w, req) }
func ReadRequest(r io.Reader) (Request, error)       { var req Request; err := protoio.Read(r, &req); return req, err }
func WriteResponse(w io.Writer, resp Response) error { return protoio.Write(w, resp) }
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := protoio.Read(r, &resp)
	return resp, err
}
