package mtp

import (
	"context"
	"fmt"
)

// fakeTransport is an in-memory rawTransport for exercising the
// Transaction Engine without real hardware (the teacher's
// device_test.go needs an attached device; this profile's tests don't
// have one). Callers script the bytes recv() should hand back, one
// packet per call, and capture everything sent.
type fakeTransport struct {
	maxOut int
	maxIn  int

	recvQueue [][]byte
	recvPos   int

	sent   [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{maxOut: packetSize, maxIn: packetSize}
}

// queueRecv appends one packet to be returned by successive recv calls.
func (f *fakeTransport) queueRecv(pkt []byte) {
	f.recvQueue = append(f.recvQueue, pkt)
}

func (f *fakeTransport) send(b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeTransport) recv(ctx context.Context, buf []byte) (int, error) {
	if f.recvPos >= len(f.recvQueue) {
		return 0, fmt.Errorf("fakeTransport: recv called %d times, only %d packets queued", f.recvPos+1, len(f.recvQueue))
	}
	pkt := f.recvQueue[f.recvPos]
	f.recvPos++
	n := copy(buf, pkt)
	return n, nil
}

func (f *fakeTransport) maxPacketOut() int { return f.maxOut }
func (f *fakeTransport) maxPacketIn() int  { return f.maxIn }

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}
