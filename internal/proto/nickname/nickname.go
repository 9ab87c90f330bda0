// Package nickname implements the "/nickname/1.0.0" request/response
// protocol (§4.E): a single unsolicited AnnounceNickname sent on peer
// discovery, acknowledged with the responder's own current nickname.
package nickname

import (
	"io"

	"github.com/gigi-net/gigi-core/internal/proto/protoio"
)

// ProtocolID is the libp2p protocol id this exchange runs over.
const ProtocolID = "/nickname/1.0.0"

// Request is the sole request variant: announce the sender's nickname.
type Request struct {
	Nickname string `cbor:"nickname"`
}

// Response is either an Ack carrying the responder's own nickname, or
// an Error when the announced nickname was rejected.
type Response struct {
	Ack   *Ack    `cbor:"ack,omitempty"`
	Error *string `cbor:"error,omitempty"`
}

type Ack struct {
	Nickname string `cbor:"nickname"`
}

func AckResponse(nickname string) Response {
	return Response{Ack: &Ack{Nickname: nickname}}
}

func ErrorResponse(msg string) Response {
	return Response{Error: &msg}
}

func WriteRequest(w io.Writer, req Request) error   { return protoio.Write(w, req) }
func ReadRequest(r io.Reader) (Request, error)      { var req Request; err := protoio.Read(r, &req); return req, err }
func WriteResponse(w io.Writer, resp Response) error { return protoio.Write(w, resp) }
func ReadResponse(r io.Reader) (Response, error) {
	var resp Response
	err := protoio.Read(r, &resp)
	return resp, err
}
