// Package dnswire implements the custom DNS-over-multicast packet layer
// used for local peer discovery: RFC 1035 wire format over a non-standard
// port and service name, with query/response packets, TXT field encoding,
// transaction-id tracking, and parse-error rate limiting.
package dnswire

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/miekg/dns"
)

const (
	// Port is the UDP port used for discovery, deliberately distinct
	// from the standard mDNS port 5353.
	Port = 7173

	// MulticastIPv4 and MulticastIPv6 are the multicast group addresses
	// discovery packets are sent to and received on.
	MulticastIPv4 = "224.0.0.251"
	MulticastIPv6 = "ff02::fb"

	// ServiceName is the single well-known service this protocol queries
	// and answers for.
	ServiceName = "_gigi-dns._udp.local."

	// MaxTXTLen is the maximum encoded TXT payload length; longer
	// encodings are rejected at serialization.
	MaxTXTLen = 4096

	// maxCharString is the maximum length of a single DNS character
	// string (RFC 1035 §3.3), used to chunk the TXT payload.
	maxCharString = 255
)

var (
	ErrPayloadTooLong  = errors.New("dnswire: encoded payload exceeds 4096 bytes")
	ErrPacketTooShort  = errors.New("dnswire: packet shorter than 12-byte header")
	ErrMissingField    = errors.New("dnswire: required TXT field missing")
	ErrRDLengthInvalid = errors.New("dnswire: RDLENGTH exceeds packet bounds")
)

// Announcement is the decoded content of a TXT response record.
type Announcement struct {
	PeerID   string
	Nickname string
	Addr     string
	Caps     []string
	Meta     map[string]string
}

// encode renders the announcement as the single space-separated
// key=value string described in §4.B, in a stable field order so the
// TXT round-trip property is deterministic.
func (a Announcement) encode() (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "peer_id=%s nickname=%s addr=%s", a.PeerID, a.Nickname, a.Addr)
	if len(a.Caps) > 0 {
		fmt.Fprintf(&b, " caps=%s", strings.Join(a.Caps, ","))
	}
	if len(a.Meta) > 0 {
		keys := make([]string, 0, len(a.Meta))
		for k := range a.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+":"+a.Meta[k])
		}
		fmt.Fprintf(&b, " meta=%s", strings.Join(pairs, ","))
	}
	s := b.String()
	if len(s) > MaxTXTLen {
		return "", ErrPayloadTooLong
	}
	return s, nil
}

// decodeAnnouncement parses the key=value fields produced by encode.
// Unknown keys are ignored; missing peer_id, nickname, or addr is an error.
func decodeAnnouncement(s string) (Announcement, error) {
	var a Announcement
	for _, field := range strings.Fields(s) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "peer_id":
			a.PeerID = v
		case "nickname":
			a.Nickname = v
		case "addr":
			a.Addr = v
		case "caps":
			if v != "" {
				a.Caps = strings.Split(v, ",")
			}
		case "meta":
			if v != "" {
				a.Meta = make(map[string]string)
				for _, kv := range strings.Split(v, ",") {
					mk, mv, ok := strings.Cut(kv, ":")
					if ok {
						a.Meta[mk] = mv
					}
				}
			}
		}
	}
	if a.PeerID == "" || a.Nickname == "" || a.Addr == "" {
		return Announcement{}, ErrMissingField
	}
	return a, nil
}

// chunkString splits s into character-string chunks of at most 255
// bytes each, the unit BuildResponse packs into the TXT RR.
func chunkString(s string) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	b := []byte(s)
	for len(b) > 0 {
		n := len(b)
		if n > maxCharString {
			n = maxCharString
		}
		chunks = append(chunks, string(b[:n]))
		b = b[n:]
	}
	return chunks
}

// BuildQuery encodes a PTR query packet with the given 16-bit
// transaction id (§4.B "Query packet").
func BuildQuery(txID uint16) ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = txID
	msg.Response = false
	msg.Question = []dns.Question{{
		Name:   ServiceName,
		Qtype:  dns.TypePTR,
		Qclass: dns.ClassINET,
	}}
	return msg.Pack()
}

// BuildResponse encodes a single-answer TXT response packet (§4.B
// "Response packet"). One call produces one packet carrying one
// address's announcement; the discovery task calls this once per
// known reachable address to form the announcement stream.
func BuildResponse(txID uint16, ttl uint32, ann Announcement) ([]byte, error) {
	payload, err := ann.encode()
	if err != nil {
		return nil, err
	}

	msg := new(dns.Msg)
	msg.Id = txID
	msg.Response = true
	msg.Answer = []dns.RR{&dns.TXT{
		Hdr: dns.RR_Header{
			Name:   ServiceName,
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: chunkString(payload),
	}}
	return msg.Pack()
}

// ParsedPacket is the result of parsing an incoming datagram.
type ParsedPacket struct {
	TxID          uint16
	IsQuery       bool
	Announcements []Announcement // populated only when !IsQuery
}

// Parse decodes a raw datagram per the §4.B parser contract: packets
// under 12 bytes are rejected outright; queries (QR=0) produce no
// announcements; responses (QR=1) yield one Announcement per TXT
// answer whose required fields are all present.
func Parse(data []byte) (*ParsedPacket, error) {
	if len(data) < 12 {
		return nil, ErrPacketTooShort
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(data); err != nil {
		return nil, fmt.Errorf("dnswire: unpack: %w", err)
	}

	if !msg.Response {
		return &ParsedPacket{TxID: msg.Id, IsQuery: true}, nil
	}

	out := &ParsedPacket{TxID: msg.Id}
	for _, rr := range msg.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok {
			continue
		}
		joined := strings.Join(txt.Txt, "")
		ann, err := decodeAnnouncement(joined)
		if err != nil {
			return nil, err
		}
		out.Announcements = append(out.Announcements, ann)
	}
	return out, nil
}
