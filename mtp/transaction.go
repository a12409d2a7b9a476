package mtp

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// commandTimeout bounds a single bulk-IN read waiting for a Response
// container, or the initial terminal packet after a command (spec.md
// §5: "5-30s" guidance). dataPacketTimeout bounds each individual
// bulk-IN read once a Data phase is known to be under way: it is a
// per-packet budget, not a per-object one, so a multi-minute audio
// download survives as long as the device keeps sending packets
// within this window (spec.md §5: "larger for audio").
const (
	commandTimeout    = 30 * time.Second
	dataPacketTimeout = 2 * time.Minute
)

// sessionData tracks the session and transaction id counter, the way
// the teacher's Device.session field does.
type sessionData struct {
	sid uint32
	tid uint32
}

// Device is a single MTP connection: one claimed USB interface, at
// most one open session, and a transaction id counter. All public
// operations (session.go) funnel through RunTransaction, which is the
// only place that touches the transport.
type Device struct {
	transport rawTransport
	session   *sessionData

	// Debug switches mirror the teacher's three independent trace
	// flags (MTPDebug/USBDebug/DataDebug), now routed through rlog
	// instead of the stdlib log package. MTP gates request/response
	// logging and Data gates received-packet dumps; nothing in this
	// package logs under USB.
	Debug struct {
		MTP  bool
		USB  bool
		Data bool
	}

	log *logrus.Entry
}

// NewDevice wraps a transport in a Device. Production callers get t
// from OpenUSBTransport; tests supply a fake.
func NewDevice(t rawTransport, log *logrus.Entry) *Device {
	return &Device{transport: t, log: log}
}

// Close releases the session (if any) and the transport.
func (d *Device) Close() error {
	if d.session != nil {
		var req, rep Container
		req.Code = OC_CloseSession
		if err := d.RunTransaction(&req, &rep, nil, nil, 0); err != nil && d.log != nil {
			d.log.WithError(err).Warn("close session failed")
		}
		d.session = nil
	}
	return d.transport.Close()
}

// identifiable is implemented by transports that can read a USB
// descriptor identity string; the fake transport used in tests does
// not, so ID is best-effort.
type identifiable interface {
	ID() (string, error)
}

// ID returns the transport's manufacturer/product/serial string, or
// an error if the underlying transport can't provide one.
func (d *Device) ID() (string, error) {
	id, ok := d.transport.(identifiable)
	if !ok {
		return "", fmt.Errorf("mtp: transport does not expose a device identity")
	}
	return id.ID()
}

// resettable is implemented by transports that can recover a wedged
// USB device; the fake transport used in tests does not need to.
type resettable interface {
	Reset() error
}

// Reset asks the transport to issue a USB port reset, if it supports
// one. Used by the supervisor's connect sequence to retry a failed
// OpenSession once (spec.md §10 supplemented features).
func (d *Device) Reset() error {
	r, ok := d.transport.(resettable)
	if !ok {
		return fmt.Errorf("mtp: transport does not support reset")
	}
	return r.Reset()
}

// nextTransactionID implements §4.4's counter rule: OpenSession uses
// id 0 (the session is nil, so this is never called for it); every
// later call increments first, then returns.
func (d *Device) nextTransactionID() uint32 {
	d.session.tid++
	return d.session.tid
}

// RunTransaction executes one Command/{Data}/Response exchange (§4.4).
// Exactly one of dest/src may be set: dest receives a Data-in phase,
// src supplies a Data-out phase of writeSize bytes. Neither set means
// no Data phase.
func (d *Device) RunTransaction(req, rep *Container, dest io.Writer, src io.Reader, writeSize int64) error {
	if d.session != nil {
		req.SessionID = d.session.sid
		req.TransactionID = d.nextTransactionID()
	}

	if d.Debug.MTP && d.log != nil {
		d.log.WithField("params", req.Param).Debugf("-> %s", getName(OC_names, int(req.Code)))
	}

	if err := d.transport.send(encodeCommand(req.Code, req.TransactionID, req.Param)); err != nil {
		return err
	}

	if src != nil {
		if err := d.sendData(req.Code, req.TransactionID, src, writeSize); err != nil {
			return err
		}
	}

	expectData := dest != nil

	cmdCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	first, err := d.readFramedPacket(cmdCtx)
	if err != nil {
		return err
	}

	switch first.hdr.Type {
	case UContainerData:
		if !expectData {
			return &ProtocolError{Reason: "unexpected data phase for an operation with no data-in"}
		}
		if err := d.drainData(context.Background(), &first, dest); err != nil {
			return err
		}
		respCtx, respCancel := context.WithTimeout(context.Background(), commandTimeout)
		defer respCancel()
		second, err := d.readFramedPacket(respCtx)
		if err != nil {
			return err
		}
		if second.hdr.Type != UContainerResponse {
			return &ProtocolError{Reason: fmt.Sprintf(
				"expected response after data phase, got %s", uContainerNames[int(second.hdr.Type)])}
		}
		return d.finishResponse(req, rep, &second)
	case UContainerResponse:
		if !expectData {
			return d.finishResponse(req, rep, &first)
		}
		// Ordering observation (§4.4): host-side USB buffering can
		// deliver the Response container ahead of the Data container
		// it logically follows. Read the next terminal packet and
		// classify it by type rather than assuming order.
		second, err := d.readFramedPacket(cmdCtx)
		if err != nil {
			return err
		}
		if second.hdr.Type != UContainerData {
			return &ProtocolError{Reason: fmt.Sprintf(
				"expected data phase after an out-of-order response, got %s", uContainerNames[int(second.hdr.Type)])}
		}
		dataCtx, cancel := context.WithTimeout(context.Background(), dataPacketTimeout)
		defer cancel()
		if err := d.drainData(dataCtx, &second, dest); err != nil {
			return err
		}
		return d.finishResponse(req, rep, &first)
	default:
		return &ProtocolError{Reason: fmt.Sprintf(
			"unexpected container type %s after command", uContainerNames[int(first.hdr.Type)])}
	}
}

func (d *Device) finishResponse(req, rep *Container, p *framedPacket) error {
	rep.Code = p.hdr.Code
	rep.TransactionID = p.hdr.TransactionID
	rep.Param = decodeParams(p.body)
	rep.SessionID = req.SessionID

	if d.Debug.MTP && d.log != nil {
		d.log.WithField("params", rep.Param).Debugf("<- %s", getName(RC_names, int(rep.Code)))
	}

	if d.session != nil && rep.TransactionID != req.TransactionID {
		return &ProtocolError{Reason: fmt.Sprintf(
			"transaction id mismatch: got %#x want %#x", rep.TransactionID, req.TransactionID)}
	}
	if rep.Code != RC_OK && rep.Code != RC_SessionAlreadyOpen {
		return &MtpStatus{Op: getName(OC_names, int(req.Code)), Code: rep.Code}
	}
	return nil
}

// framedPacket is a USB packet that opens a container: it carries the
// 12-byte header plus whatever body bytes arrived in the same packet.
type framedPacket struct {
	hdr  wireHeader
	body []byte
}

func (d *Device) readFramedPacket(ctx context.Context) (framedPacket, error) {
	buf := make([]byte, d.transport.maxPacketIn())
	n, err := d.transport.recv(ctx, buf)
	if err != nil {
		return framedPacket{}, err
	}
	if d.Debug.Data && d.log != nil {
		d.log.Debugf("recv %d bytes\n%s", n, hexDump(buf[:n]))
	}
	hdr, body, err := decodeHeader(buf[:n])
	if err != nil {
		return framedPacket{}, err
	}
	return framedPacket{hdr: hdr, body: body}, nil
}

// drainData consumes a Data phase that starts with first (already
// read). It writes every byte of the payload to dest in the order
// received — one dest.Write call per USB packet, so a caller
// streaming to chunked storage (largeobject.go) can count packets
// accurately — and stops once either the declared length has been
// satisfied or a short packet arrives, per §4.4. When the declared
// length is an exact multiple of the max packet size, one further
// zero-length packet must still be read to reach the terminator
// before the Response (§4.6 step 5). Each bulk-IN read gets its own
// dataPacketTimeout budget, derived from ctx.
func (d *Device) drainData(ctx context.Context, first *framedPacket, dest io.Writer) error {
	declared := int64(first.hdr.Length) - usbHdrLen
	if declared < 0 {
		return &ProtocolError{Reason: "negative data phase length"}
	}

	if dest == nil {
		dest = discard{}
	}
	if ts, ok := dest.(totalSetter); ok {
		ts.SetTotal(declared)
	}

	write := func(b []byte) error {
		if len(b) == 0 {
			return nil
		}
		_, err := dest.Write(b)
		return err
	}

	if err := write(first.body); err != nil {
		return err
	}
	received := int64(len(first.body))
	maxIn := d.transport.maxPacketIn()

	// lastFull tracks whether the most recently received USB packet
	// (header included for the first one) filled maxIn exactly: that,
	// not the payload length alone, is what decides whether a
	// zero-length terminator follows (the USB ZLP rule applies to the
	// wire transfer, and the Container header shares a packet with
	// the first chunk of payload).
	lastFull := usbHdrLen+len(first.body) == maxIn
	for received < declared {
		buf := make([]byte, maxIn)
		pktCtx, cancel := context.WithTimeout(ctx, dataPacketTimeout)
		n, err := d.transport.recv(pktCtx, buf)
		cancel()
		if err != nil {
			return err
		}
		if d.Debug.Data && d.log != nil {
			d.log.Debugf("data chunk %d bytes", n)
		}
		if err := write(buf[:n]); err != nil {
			return err
		}
		received += int64(n)
		lastFull = n == maxIn
		if n < maxIn {
			// Short packet: this is the terminator, even if we
			// haven't reached declared length (§4.4 (b)).
			return nil
		}
	}

	if received == declared && lastFull {
		// Exact multiple: one more bulk-IN, expected zero-length,
		// consumes the terminator (§4.6 step 5).
		buf := make([]byte, maxIn)
		pktCtx, cancel := context.WithTimeout(ctx, dataPacketTimeout)
		n, err := d.transport.recv(pktCtx, buf)
		cancel()
		if err != nil {
			return err
		}
		if n != 0 && d.log != nil {
			d.log.Warnf("expected zero-length terminator, got %d bytes", n)
		}
	}
	return nil
}

// sendData writes a Data-out phase of size bytes from r (§4.4). The
// first packet carries 500 payload bytes after the header to keep the
// first USB transfer at or under the 512-byte packet limit; later
// packets carry up to the endpoint's max packet size. An exact
// multiple of the max packet size is followed by a zero-length write.
func (d *Device) sendData(code uint16, tid uint32, r io.Reader, size int64) error {
	maxOut := d.transport.maxPacketOut()
	firstPayload := int64(maxOut - usbHdrLen)
	if firstPayload > 500 {
		firstPayload = 500
	}
	if firstPayload > size {
		firstPayload = size
	}

	header := encodeDataHeader(code, tid, uint32(usbHdrLen+size))
	first := make([]byte, 0, usbHdrLen+firstPayload)
	first = append(first, header...)
	chunk := make([]byte, firstPayload)
	if firstPayload > 0 {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return &ParseError{What: "data phase body", Err: err}
		}
		first = append(first, chunk...)
	}
	if err := d.transport.send(first); err != nil {
		return err
	}

	sent := firstPayload
	for sent < size {
		n := size - sent
		if n > int64(maxOut) {
			n = int64(maxOut)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return &ParseError{What: "data phase body", Err: err}
		}
		if err := d.transport.send(buf); err != nil {
			return err
		}
		sent += n
	}

	total := usbHdrLen + size
	if total%int64(maxOut) == 0 {
		if err := d.transport.send(nil); err != nil {
			return err
		}
	}
	return nil
}

// discard is an io.Writer that throws away unexpected Data phases
// (e.g. GetObject's caller passed no destination).
type discard struct{}

func (discard) Write(b []byte) (int, error) { return len(b), nil }

// totalSetter lets a Data-in destination learn the declared Data
// phase length as soon as the first packet's header reveals it —
// large-object downloads don't know the object's size until then
// (largeobject.go's chunkWriter implements this to size its progress
// Tracker).
type totalSetter interface {
	SetTotal(int64)
}
