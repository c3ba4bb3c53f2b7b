// Package gpframe implements the wire framing used over the established
// GP tunnel TLS stream: a fixed 16-byte header followed by a variable
// length payload.
package gpframe

import (
	"encoding/binary"

	"github.com/DrivasLab/pmacs-utils/pkg/vpnerr"
)

// HeaderLen is the fixed size of a GP frame header in bytes.
const HeaderLen = 16

// lengthOffset is where the big-endian uint16 payload length lives within
// the header, per the wire layout (offset 6..8).
const lengthOffset = 6

// magic/type bits identifying a data frame on the wire. The exact values
// are fixed by the protocol; callers never need to know them, only that
// encode/decode agree.
var dataMagic = [4]byte{0x1a, 0x2b, 0x3c, 0x4d}

const frameTypeData = uint16(0x0101)
const frameTypeKeepalive = uint16(0x0002)

// Kind distinguishes a decoded frame as carrying data or acting purely as
// a keepalive.
type Kind int

const (
	KindData Kind = iota
	KindKeepalive
)

// Frame is a decoded GP frame: either a keepalive (Payload is nil) or a
// data frame carrying a single L3 IP packet.
type Frame struct {
	Kind    Kind
	Payload []byte
}

func newHeader(length uint16, frameType uint16) []byte {
	h := make([]byte, HeaderLen)
	copy(h[0:4], dataMagic[:])
	binary.BigEndian.PutUint16(h[4:6], frameType)
	binary.BigEndian.PutUint16(h[lengthOffset:lengthOffset+2], length)
	return h
}

// Encode emits the header + payload for a data frame carrying a single L3
// IP packet. The payload is copied into the returned slice, so the caller
// may reuse ipPacket's buffer afterward.
func Encode(ipPacket []byte) []byte {
	out := make([]byte, 0, HeaderLen+len(ipPacket))
	out = append(out, newHeader(uint16(len(ipPacket)), frameTypeData)...)
	out = append(out, ipPacket...)
	return out
}

// EncodeKeepalive emits a 16-byte header with length zero and no payload.
func EncodeKeepalive() []byte {
	return newHeader(0, frameTypeKeepalive)
}

// PayloadLength reads the length field out of a 16-byte header without
// requiring the payload to be present yet; this lets the tunnel read path
// discover how many more bytes to read before it reads them.
func PayloadLength(header []byte) (uint16, error) {
	if len(header) != HeaderLen {
		return 0, vpnerr.FrameError.Newf("gpframe: header must be %d bytes, got %d", HeaderLen, len(header))
	}
	return binary.BigEndian.Uint16(header[lengthOffset : lengthOffset+2]), nil
}

// Decode validates a header/payload pair and classifies it as data or
// keepalive. It fails with a FrameError-kind error if the header's length
// field doesn't match the supplied payload.
func Decode(header, payload []byte) (Frame, error) {
	length, err := PayloadLength(header)
	if err != nil {
		return Frame{}, err
	}
	if int(length) != len(payload) {
		return Frame{}, vpnerr.FrameError.Newf("gpframe: header declares %d byte payload, got %d", length, len(payload))
	}
	if length == 0 {
		return Frame{Kind: KindKeepalive}, nil
	}
	return Frame{Kind: KindData, Payload: payload}, nil
}

// ClassifyFromIP rejects payloads that don't look like an IPv4 or IPv6
// packet by inspecting the version nibble in the first byte, per the
// spec's classify_from_ip contract.
func ClassifyFromIP(payload []byte) (tunneled bool) {
	if len(payload) == 0 {
		return false
	}
	version := payload[0] >> 4
	return version == 4 || version == 6
}
