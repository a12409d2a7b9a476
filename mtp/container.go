package mtp

import (
	"fmt"
)

// wireHeader is the 12-byte Container header shared by every packet
// type (PIMA 15740 table 2). Parameters or payload follow immediately
// in the same USB packet.
type wireHeader struct {
	Length        uint32
	Type          uint16
	Code          uint16
	TransactionID uint32
}

// encodeCommand builds a complete Command container: header followed
// by up to five little-endian 32-bit parameters. This profile never
// splits a Command across packets — five params plus the header is
// 32 bytes, far under the 512-byte packet limit.
func encodeCommand(code uint16, tid uint32, params []uint32) []byte {
	buf := make([]byte, usbHdrLen+4*len(params))
	byteOrder.PutUint32(buf[0:], uint32(usbHdrLen+4*len(params)))
	byteOrder.PutUint16(buf[4:], UContainerCommand)
	byteOrder.PutUint16(buf[6:], code)
	byteOrder.PutUint32(buf[8:], tid)
	for i, p := range params {
		byteOrder.PutUint32(buf[usbHdrLen+4*i:], p)
	}
	return buf
}

// encodeDataHeader builds the 12-byte header that opens a Data phase.
// length is the total Data phase length (header included), matching
// §4.2's encode_data contract.
func encodeDataHeader(code uint16, tid uint32, length uint32) []byte {
	buf := make([]byte, usbHdrLen)
	byteOrder.PutUint32(buf[0:], length)
	byteOrder.PutUint16(buf[4:], UContainerData)
	byteOrder.PutUint16(buf[6:], code)
	byteOrder.PutUint32(buf[8:], tid)
	return buf
}

// decodeHeader splits a received USB packet into its 12-byte header
// and whatever body bytes followed it in the same packet. A buffer
// shorter than 12 bytes is a protocol error; there is no partial
// header in MTP bulk framing.
func decodeHeader(pkt []byte) (wireHeader, []byte, error) {
	if len(pkt) < usbHdrLen {
		return wireHeader{}, nil, &ProtocolError{
			Reason: fmt.Sprintf("packet too short for container header: %d bytes", len(pkt)),
		}
	}
	h := wireHeader{
		Length:        byteOrder.Uint32(pkt[0:]),
		Type:          byteOrder.Uint16(pkt[4:]),
		Code:          byteOrder.Uint16(pkt[6:]),
		TransactionID: byteOrder.Uint32(pkt[8:]),
	}
	body := pkt[usbHdrLen:]
	// §4.2: a received buffer may be longer than length (trailing USB
	// framing); trim it. A buffer shorter than length is a
	// continuation requirement handled by the caller, not here.
	if want := int(h.Length) - usbHdrLen; want >= 0 && want < len(body) {
		body = body[:want]
	}
	return h, body, nil
}

func decodeParams(body []byte) []uint32 {
	n := len(body) / 4
	params := make([]uint32, n)
	for i := 0; i < n; i++ {
		params[i] = byteOrder.Uint32(body[4*i:])
	}
	return params
}
