package mtp

import (
	"bytes"
	"testing"

	"github.com/coredevices/mtprecorder/progress"
	"github.com/coredevices/mtprecorder/sink"
)

// recordingObserver captures every Update it's given, for asserting
// on the final percentage without standing up a websocket Hub.
type recordingObserver struct {
	updates []progress.Update
}

func (r *recordingObserver) Observe(u progress.Update) {
	r.updates = append(r.updates, u)
}

// queueAudioDownload scripts a GetObject Data phase carrying payload,
// split into maxIn-sized bulk-IN packets the way the device would
// send them, followed by an OK response. Whether the wire transfer
// lands on an exact multiple of maxIn (requiring a zero-length
// terminator, §4.6 step 5) falls out of the actual packet sizes, not
// out of len(payload) alone — that distinction is the bug §4.6's
// terminator logic has to get right.
func queueAudioDownload(t *testing.T, ft *fakeTransport, tid uint32, payload []byte) {
	t.Helper()
	maxIn := ft.maxIn
	firstLen := maxIn - usbHdrLen
	if firstLen > len(payload) {
		firstLen = len(payload)
	}
	ft.queueRecv(buildDataPacket(OC_GetObject, tid, uint32(usbHdrLen+len(payload)), payload[:firstLen]))
	lastOnWire := usbHdrLen + firstLen

	// Continuation packets carry no header of their own — only the
	// first Data packet does (§4.2) — so these are raw payload bytes.
	rest := payload[firstLen:]
	for len(rest) > 0 {
		n := maxIn
		if n > len(rest) {
			n = len(rest)
		}
		buf := make([]byte, n)
		copy(buf, rest[:n])
		ft.queueRecv(buf)
		rest = rest[n:]
		lastOnWire = n
	}
	if lastOnWire == maxIn {
		ft.queueRecv(nil) // zero-length terminator: a genuinely empty bulk-IN
	}
	ft.queueRecv(buildResponse(RC_OK, tid, nil))
}

// TestGetObjectLargeChunksAndReassembles reproduces scenario 5 at a
// scale the fixture can hold in memory: a download whose total size is
// an exact multiple of the packet size, split across more than one
// chunk window.
func TestGetObjectLargeChunksAndReassembles(t *testing.T) {
	ft := newFakeTransport()
	ft.maxIn = 64
	sess := openedSession(t, ft)

	// 52 bytes in the first (header-sharing) packet, then nine full
	// 64-byte continuation packets: every wire packet lands exactly on
	// maxIn, so a zero-length terminator is required after the loop.
	payload := make([]byte, 52+9*64)
	for i := range payload {
		payload[i] = byte(i)
	}
	queueAudioDownload(t, ft, 1, payload)

	sk := sink.NewMemorySink()
	obs := &recordingObserver{}
	if err := sess.GetObjectLarge(42, "dev-1", sk, obs, 3); err != nil {
		t.Fatalf("GetObjectLarge: %v", err)
	}

	got := sk.Bytes("dev-1")
	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled %d bytes, want %d", len(got), len(payload))
	}

	chunks := sk.Chunks("dev-1")
	if len(chunks) < 2 {
		t.Errorf("got %d chunks, want at least 2 with a window of 3 packets", len(chunks))
	}

	last := obs.updates[len(obs.updates)-1]
	if last.Phase != progress.PhaseFinished {
		t.Errorf("final phase = %s, want finished", last.Phase)
	}
	if last.Percent != 100 {
		t.Errorf("final percent = %v, want 100", last.Percent)
	}
}

// TestGetObjectLargeShortFinalPacket covers a download whose length is
// not an exact multiple of the packet size: the last data packet is
// short and self-terminates, with no extra zero-length read.
func TestGetObjectLargeShortFinalPacket(t *testing.T) {
	ft := newFakeTransport()
	ft.maxIn = 64
	sess := openedSession(t, ft)

	payload := make([]byte, 64*3+17) // not a multiple of maxIn
	queueAudioDownload(t, ft, 1, payload)

	sk := sink.NewMemorySink()
	if err := sess.GetObjectLarge(42, "dev-2", sk, nil, 0); err != nil {
		t.Fatalf("GetObjectLarge: %v", err)
	}
	if got := sk.Bytes("dev-2"); len(got) != len(payload) {
		t.Fatalf("reassembled %d bytes, want %d", len(got), len(payload))
	}
}

// TestGetObjectLargePropagatesFailure checks that a failed download
// still reports PhaseFailed rather than dropping the observer update.
func TestGetObjectLargePropagatesFailure(t *testing.T) {
	ft := newFakeTransport()
	sess := openedSession(t, ft)
	// No packets queued: the first recv on the Data phase errors.

	obs := &recordingObserver{}
	err := sess.GetObjectLarge(1, "dev-3", sink.NewMemorySink(), obs, 0)
	if err == nil {
		t.Fatal("expected error")
	}
	last := obs.updates[len(obs.updates)-1]
	if last.Phase != progress.PhaseFailed {
		t.Errorf("final phase = %s, want failed", last.Phase)
	}
}
