package mtp

import "testing"

func TestEncodeCommandRoundTrip(t *testing.T) {
	params := []uint32{1, 2, 3}
	buf := encodeCommand(OC_GetObjectHandles, 7, params)

	h, body, err := decodeHeader(buf)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if h.Type != UContainerCommand {
		t.Errorf("type = %d, want Command", h.Type)
	}
	if h.Code != OC_GetObjectHandles {
		t.Errorf("code = %#x, want %#x", h.Code, OC_GetObjectHandles)
	}
	if h.TransactionID != 7 {
		t.Errorf("tid = %d, want 7", h.TransactionID)
	}

	got := decodeParams(body)
	if len(got) != len(params) {
		t.Fatalf("got %d params, want %d", len(got), len(params))
	}
	for i := range params {
		if got[i] != params[i] {
			t.Errorf("param[%d] = %d, want %d", i, got[i], params[i])
		}
	}
}

// TestOpenSessionWire reproduces scenario 1 of the concrete end-to-end
// traces: the exact bytes for an OpenSession(1) command.
func TestOpenSessionWire(t *testing.T) {
	got := encodeCommand(OC_OpenSession, 0, []uint32{1})
	want := []byte{
		0x0C, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x02, 0x10,
		0x00, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

// TestDeleteObjectWire reproduces scenario 4.
func TestDeleteObjectWire(t *testing.T) {
	got := encodeCommand(OC_DeleteObject, 1, []uint32{2, 0})
	want := []byte{
		0x14, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x0B, 0x10,
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	if len(got) != len(want) {
		t.Fatalf("length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, _, err := decodeHeader([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected error for short packet")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("got %T, want *ProtocolError", err)
	}
}

func TestDecodeHeaderTrimsTrailingFraming(t *testing.T) {
	// length says 12 (no params) but the USB packet padded on 4 extra
	// bytes of trailing framing; decodeHeader must trim to length.
	pkt := append(encodeCommand(OC_CloseSession, 3, nil), 0xAA, 0xAA, 0xAA, 0xAA)
	h, body, err := decodeHeader(pkt)
	if err != nil {
		t.Fatalf("decodeHeader: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("body length = %d, want 0 after trim", len(body))
	}
	if h.Code != OC_CloseSession {
		t.Errorf("code = %#x, want %#x", h.Code, OC_CloseSession)
	}
}
