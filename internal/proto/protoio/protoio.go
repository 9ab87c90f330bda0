// Package protoio provides the shared CBOR framing used by every
// request/response protocol (§9: "a flat dispatch table keyed by
// protocol id", not a virtual behaviour base type). Each protocol
// package defines its own concrete request/response types and reuses
// these two functions to move them over a stream.
package protoio

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Write CBOR-encodes v and writes it to w. CBOR items are
// self-delimiting, so no additional length framing is needed.
func Write(w io.Writer, v any) error {
	enc := cbor.NewEncoder(w)
	return enc.Encode(v)
}

// Read decodes exactly one CBOR item from r into v.
func Read(r io.Reader, v any) error {
	dec := cbor.NewDecoder(r)
	return dec.Decode(v)
}
