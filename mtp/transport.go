package mtp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// interPacketDelay separates consecutive bulk writes. The device
// needs this gap; removing it breaks transfers on some hosts (spec.md
// §5 suspension points).
const interPacketDelay = 10 * time.Millisecond

// vendorID is this profile's recorder vendor filter (spec.md §6).
const vendorID = gousb.ID(0x1D3D)

// usbTransport drives one device's bulk IN/OUT endpoint pair through
// libusb via gousb. It is the only file in this package that touches
// USB directly; everything above it (container.go, transaction.go)
// talks to the narrower rawTransport interface so it can run against
// a fake in tests.
type usbTransport struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface

	out *gousb.OutEndpoint
	in  *gousb.InEndpoint

	outMax int
	inMax  int
}

type rawTransport interface {
	send([]byte) error
	recv(ctx context.Context, buf []byte) (int, error)
	maxPacketOut() int
	maxPacketIn() int
	Close() error
}

// OpenUSBTransport scans attached devices for the first one carrying
// vendorID, selects configuration 1, claims interface 0's first alt
// setting, and binds the lowest-numbered bulk OUT and bulk IN
// endpoints. Interrupt endpoints (MTP events) are left unclaimed —
// this profile never reads them (spec.md §1 non-goals).
func OpenUSBTransport() (*usbTransport, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vendorID
	})
	if err != nil {
		ctx.Close()
		return nil, &TransportLost{Op: "scan", Err: err}
	}
	for _, extra := range devs[min(1, len(devs)):] {
		extra.Close()
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, &TransportLost{Op: "scan", Err: fmt.Errorf("no device with vendor id %#x", uint16(vendorID))}
	}
	dev := devs[0]

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, &TransportLost{Op: "select configuration", Err: err}
	}

	iface, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, &TransportLost{Op: "claim interface", Err: err}
	}

	t := &usbTransport{ctx: ctx, dev: dev, cfg: cfg, iface: iface}
	if err := t.bindEndpoints(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (t *usbTransport) bindEndpoints() error {
	var outDesc, inDesc *gousb.EndpointDesc
	for _, ep := range t.iface.Setting.Endpoints {
		desc := ep
		if desc.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if desc.Direction == gousb.EndpointDirectionOut {
			if outDesc == nil || desc.Number < outDesc.Number {
				outDesc = &desc
			}
		} else if desc.Direction == gousb.EndpointDirectionIn {
			if inDesc == nil || desc.Number < inDesc.Number {
				inDesc = &desc
			}
		}
	}
	if outDesc == nil || inDesc == nil {
		return &TransportLost{Op: "endpoints", Err: fmt.Errorf(
			"missing bulk endpoint (have out=%v in=%v)", outDesc != nil, inDesc != nil)}
	}

	out, err := t.iface.OutEndpoint(int(outDesc.Address))
	if err != nil {
		return &TransportLost{Op: "bind out endpoint", Err: err}
	}
	in, err := t.iface.InEndpoint(int(inDesc.Address))
	if err != nil {
		return &TransportLost{Op: "bind in endpoint", Err: err}
	}

	t.out, t.in = out, in
	t.outMax, t.inMax = outDesc.MaxPacketSize, inDesc.MaxPacketSize
	return nil
}

func (t *usbTransport) send(b []byte) error {
	if _, err := t.out.Write(b); err != nil {
		return &TransportLost{Op: "bulk write", Err: err}
	}
	time.Sleep(interPacketDelay)
	return nil
}

// recv reads one bulk-IN packet, bounded by ctx's deadline (spec.md
// §5: "bulk-IN reads MUST carry a deadline"). gousb's InEndpoint.Read
// has no context parameter of its own, so the blocking read runs in a
// goroutine and the result is raced against ctx.Done — the same shape
// ardnew-softusb's Pipe.Read uses to thread a context through a
// blocking transfer.
func (t *usbTransport) recv(ctx context.Context, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := t.in.Read(buf)
		done <- result{n, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.n, &TransportLost{Op: "bulk read", Err: r.err}
		}
		return r.n, nil
	case <-ctx.Done():
		return 0, &Timeout{Op: "bulk read"}
	}
}

func (t *usbTransport) maxPacketOut() int { return t.outMax }
func (t *usbTransport) maxPacketIn() int  { return t.inMax }

// ID returns "manufacturer product serial", read from the device's USB
// string descriptors. The supervisor uses this to label a device
// before its config file (and thus its real SerialNumber) has been
// read (spec.md §10 supplemented features; teacher's Device.ID()).
func (t *usbTransport) ID() (string, error) {
	manu, err := t.dev.Manufacturer()
	if err != nil {
		return "", &TransportLost{Op: "read manufacturer string", Err: err}
	}
	prod, err := t.dev.Product()
	if err != nil {
		return "", &TransportLost{Op: "read product string", Err: err}
	}
	serial, err := t.dev.SerialNumber()
	if err != nil {
		return "", &TransportLost{Op: "read serial string", Err: err}
	}
	return fmt.Sprintf("%s %s %s", manu, prod, serial), nil
}

// Reset issues a USB port reset, the same recovery step the teacher's
// Configure() falls back to when OpenSession fails on a device that
// was left in a half-configured state by a previous run (spec.md §10
// supplemented features).
func (t *usbTransport) Reset() error {
	if err := t.dev.Reset(); err != nil {
		return &TransportLost{Op: "reset", Err: err}
	}
	return nil
}

func (t *usbTransport) Close() error {
	if t.iface != nil {
		t.iface.Close()
	}
	if t.cfg != nil {
		t.cfg.Close()
	}
	if t.dev != nil {
		t.dev.Close()
	}
	if t.ctx != nil {
		t.ctx.Close()
	}
	return nil
}
