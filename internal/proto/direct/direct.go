// Package direct implements the "/direct/1.0.0" request/response
// protocol (§4.F): direct text messages, file-share notifications, and
// group invitations between two peers.
package direct

import (
	"io"

	"github.com/gigi-net/gigi-core/internal/proto/protoio"
)

const ProtocolID = "/direct/1.0.0"

// Request is a tagged union over the three variants of §4.F. Exactly
// one field is populated.
type Request struct {
	Text       *Text       `cbor:"text,omitempty"`
	FileShare  *FileShare  `cbor:"file_share,omitempty"`
	ShareGroup *ShareGroup `cbor:"share_group,omitempty"`
}

// Text is an opaque UTF-8 payload.
type Text struct {
	Message string `cbor:"message"`
}

// FileShare notifies the receiver that a file is available for
// download; receiving it MUST NOT initiate a transfer automatically.
type FileShare struct {
	ShareCode string `cbor:"share_code"`
	Filename  string `cbor:"filename"`
	FileSize  int64  `cbor:"file_size"`
	FileType  string `cbor:"file_type"`
}

// ShareGroup invites the receiver to join a group.
type ShareGroup struct {
	GroupID         string `cbor:"group_id"`
	GroupName       string `cbor:"group_name"`
	InviterNickname string `cbor:"inviter_nickname"`
}

// Response is always a bare Ack; delivery is modeled on the receiver
// observing the request, not on this acknowledgement.
type Response struct{}

func WriteRequest(w io.Writer, req Request) error    { return protoio.Write(w, req) }
func ReadRequest(r io.Reader) (Request, error)       { var req Request; err := protoio.Read(r, &req); return req, err }
func WriteResponse(w io.Writer, resp Response) error { return protoio.Write(w, resp) }
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := protoio.Read(r, &resp)
	return resp, err
}
