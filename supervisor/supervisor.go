// Package supervisor owns the set of attached devices and drives each
// one's connect sequence, enumeration and soft-eject, the way
// spec.md §4.7 describes. It never imports a concrete device store or
// chunk sink — those are boundary interfaces (events.go, and
// github.com/coredevices/mtprecorder/sink) a host application
// supplies, per spec.md §9's "Dynamic device records" design note.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coredevices/mtprecorder/mtp"
	"github.com/coredevices/mtprecorder/progress"
	"github.com/coredevices/mtprecorder/sink"
)

// State is one node of the per-device state machine (spec.md §4.7).
type State int

const (
	Detected State = iota
	Opening
	Configuring
	InterfaceClaimed
	EndpointsKnown
	SessionOpen
	Enumerated
	Ready
	Closing
	Faulted
)

func (s State) String() string {
	switch s {
	case Detected:
		return "Detected"
	case Opening:
		return "Opening"
	case Configuring:
		return "Configuring"
	case InterfaceClaimed:
		return "Interface-Claimed"
	case EndpointsKnown:
		return "Endpoints-Known"
	case SessionOpen:
		return "Session-Open"
	case Enumerated:
		return "Enumerated"
	case Ready:
		return "Ready"
	case Closing:
		return "Closing"
	case Faulted:
		return "Faulted"
	default:
		return "State(?)"
	}
}

// configFile and commandFile are the well-known object names read and
// written by the enumeration/upload steps (spec.md §6).
const (
	configFile  = "config.txt"
	commandFile = "command.txt"

	// idleRefreshInterval is how long a Ready device goes untouched
	// before the supervisor re-enumerates it, catching new recordings
	// the device wrote without a fresh USB connect event.
	idleRefreshInterval = 30 * time.Second
)

// session is the subset of *mtp.Session (plus teardown) the
// Supervisor drives. Defining it here, rather than depending on
// *mtp.Session directly, lets tests exercise the state machine with a
// fake — mtp.Session's exported methods already satisfy this
// structurally, so no adapter is needed in non-test code beyond
// closing the owning *mtp.Device too (see liveSession below).
type session interface {
	Open() error
	Close() error
	RefreshStorages() error
	RefreshObjects(storageID uint32) error
	Storages() []*mtp.Storage
	FindObjectByName(storageID uint32, name string) (*mtp.Object, bool)
	GetObject(handle uint32) ([]byte, error)
	GetObjectLarge(handle uint32, deviceSerial string, sk sink.ChunkSink, obs progress.Observer, chunkWindow int) error
	DeleteObject(handle uint32) error
	UploadFile(storageID uint32, filename string, data []byte) error
}

// resettable is implemented by sessions whose underlying transport can
// recover a wedged device with a USB port reset; fakeSession in tests
// does not need to.
type resettable interface {
	Reset() error
}

// liveSession adapts *mtp.Session for real hardware: Close must tear
// down both the MTP session and the USB transport underneath it,
// which *mtp.Session alone does not own.
type liveSession struct {
	*mtp.Session
	dev *mtp.Device
}

// Reset delegates to the underlying *mtp.Device, giving the connect
// sequence below a recovery path when OpenSession fails on a device
// left half-configured by a previous run.
func (l *liveSession) Reset() error {
	return l.dev.Reset()
}

func (l *liveSession) Close() error {
	sessErr := l.Session.Close()
	devErr := l.dev.Close()
	if sessErr != nil {
		return sessErr
	}
	return devErr
}

// NewLiveSession wraps a connected *mtp.Device for use with Connect.
func NewLiveSession(dev *mtp.Device) session {
	return &liveSession{Session: mtp.NewSession(dev), dev: dev}
}

// device is everything the Supervisor tracks for one attached device.
type device struct {
	serial string
	state  State
	sess   session
	config map[string]string
	ticker *activityTicker
	cancel context.CancelFunc
}

// Supervisor owns serial -> device explicitly (spec.md §9's
// "Implicit global singletons" note: no module-level device array).
type Supervisor struct {
	mu      sync.Mutex
	devices map[string]*device
	store   DeviceStore
	log     *logrus.Entry
	group   *errgroup.Group
	ctx     context.Context
}

// New returns a Supervisor publishing events to store and running
// per-device goroutines under ctx.
func New(ctx context.Context, store DeviceStore, log *logrus.Entry) *Supervisor {
	g, gctx := errgroup.WithContext(ctx)
	return &Supervisor{
		devices: map[string]*device{},
		store:   store,
		log:     log,
		group:   g,
		ctx:     gctx,
	}
}

// Wait blocks until every device goroutine started by Connect has
// returned, propagating the first error.
func (sv *Supervisor) Wait() error {
	return sv.group.Wait()
}

// Connect runs the forward path of the state machine for a freshly
// detected device (spec.md §4.7): open/configure/claim are assumed
// already done by the caller constructing sess (OpenUSBTransport
// performs them before mtp.NewDevice wraps the transport), so Connect starts at
// Session-Open and proceeds through Enumerated to Ready. label
// identifies the device in logs before its config file's
// SerialNumber is known.
func (sv *Supervisor) Connect(sess session, label string) error {
	dctx, cancel := context.WithCancel(sv.ctx)
	d := &device{serial: label, sess: sess, state: Detected, cancel: cancel}
	sv.mu.Lock()
	sv.devices[label] = d
	sv.mu.Unlock()

	sv.group.Go(func() error {
		return sv.runConnectSequence(dctx, d)
	})
	return nil
}

func (sv *Supervisor) runConnectSequence(ctx context.Context, d *device) error {
	log := sv.log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("device", d.serial)

	sv.setState(d, Opening)
	sv.setState(d, Configuring)
	sv.setState(d, InterfaceClaimed)
	sv.setState(d, EndpointsKnown)

	if err := d.sess.Open(); err != nil {
		log.WithError(err).Warn("open session failed, trying reset")
		if r, ok := d.sess.(resettable); ok {
			if rerr := r.Reset(); rerr != nil {
				log.WithError(rerr).Error("reset failed")
				return sv.fault(d, err)
			}
			err = d.sess.Open()
		}
		if err != nil {
			log.WithError(err).Error("open session failed after reset")
			return sv.fault(d, err)
		}
	}
	sv.setState(d, SessionOpen)

	if err := sv.enumerate(d); err != nil {
		log.WithError(err).Error("enumeration failed")
		return sv.fault(d, err)
	}
	sv.setState(d, Enumerated)

	if serial, ok := d.config["SerialNumber"]; ok && serial != "" {
		sv.rename(d, serial)
	}

	sv.setState(d, Ready)
	sv.publish(d, DeviceAdded)

	d.ticker = newActivityTicker(idleRefreshInterval)
	defer d.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return sv.closeDevice(d)
		case <-d.ticker.C:
			if err := sv.enumerate(d); err != nil {
				log.WithError(err).Warn("periodic re-enumeration failed")
				continue
			}
			sv.publish(d, DeviceUpdated)
		}
	}
}

// enumerate runs GetStorageIDs -> GetStorageInfo -> GetObjectHandles
// -> GetObjectInfo -> config.txt read, exactly as spec.md §4.7
// describes.
func (sv *Supervisor) enumerate(d *device) error {
	if err := d.sess.RefreshStorages(); err != nil {
		return err
	}
	storages := d.sess.Storages()
	for _, st := range storages {
		if err := d.sess.RefreshObjects(st.ID); err != nil {
			return err
		}
	}

	for _, st := range storages {
		obj, ok := d.sess.FindObjectByName(st.ID, configFile)
		if !ok {
			continue
		}
		data, err := d.sess.GetObject(obj.Handle)
		if err != nil {
			return err
		}
		d.config = ParseConfig(data)
		break
	}
	return nil
}

// Disconnect and Eject both converge on Closing (spec.md §4.7):
// CloseSession is attempted only if Session-Open was ever reached,
// which sess.Close being a no-op on an unopened session satisfies.
func (sv *Supervisor) Disconnect(serial string) error {
	return sv.eject(serial)
}

func (sv *Supervisor) Eject(serial string) error {
	return sv.eject(serial)
}

// eject cancels the device's context, which unblocks its goroutine's
// select and runs closeDevice there — not here — so there is exactly
// one path that calls sess.Close(). The DeviceRemoved event is how a
// caller observes completion.
func (sv *Supervisor) eject(serial string) error {
	sv.mu.Lock()
	d, ok := sv.devices[serial]
	sv.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown device %q", serial)
	}
	d.cancel()
	return nil
}

func (sv *Supervisor) closeDevice(d *device) error {
	sv.setState(d, Closing)
	err := d.sess.Close()

	sv.mu.Lock()
	delete(sv.devices, d.serial)
	sv.mu.Unlock()

	sv.publish(d, DeviceRemoved)
	return err
}

func (sv *Supervisor) fault(d *device, cause error) error {
	sv.setState(d, Faulted)
	sv.mu.Lock()
	delete(sv.devices, d.serial)
	sv.mu.Unlock()
	sv.publish(d, DeviceRemoved)
	return cause
}

func (sv *Supervisor) setState(d *device, s State) {
	sv.mu.Lock()
	d.state = s
	sv.mu.Unlock()
}

// rename re-keys devices from its pre-config label to its real
// SerialNumber, so later lookups (Eject, UploadCommand) use the
// stable identity (spec.md §4.7: "idempotent on serial number").
func (sv *Supervisor) rename(d *device, serial string) {
	sv.mu.Lock()
	delete(sv.devices, d.serial)
	d.serial = serial
	sv.devices[serial] = d
	sv.mu.Unlock()
}

func (sv *Supervisor) publish(d *device, kind EventKind) {
	if sv.store == nil {
		return
	}
	sv.mu.Lock()
	rec := Record{Serial: d.serial, State: d.state, Config: d.config}
	for _, st := range d.sess.Storages() {
		rec.Storage = append(rec.Storage, StorageSummary{
			ID:          st.ID,
			Description: st.Info.StorageDescription,
			TotalBytes:  st.Info.MaxCapability,
			FreeBytes:   st.Info.FreeSpaceInBytes,
			ObjectCount: len(st.Objects),
		})
	}
	sv.mu.Unlock()
	sv.store.Handle(Event{Kind: kind, Record: rec})
}

// UploadCommand is the command.txt upload procedure from spec.md §6:
// delete any existing command.txt in the device's first storage,
// then send the new bytes.
func (sv *Supervisor) UploadCommand(serial string, data []byte) error {
	sv.mu.Lock()
	d, ok := sv.devices[serial]
	sv.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown device %q", serial)
	}
	storages := d.sess.Storages()
	if len(storages) == 0 {
		return fmt.Errorf("supervisor: device %q has no storage", serial)
	}
	return d.sess.UploadFile(storages[0].ID, commandFile, data)
}

// DeleteObject removes handle from the named device.
func (sv *Supervisor) DeleteObject(serial string, handle uint32) error {
	sv.mu.Lock()
	d, ok := sv.devices[serial]
	sv.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown device %q", serial)
	}
	return d.sess.DeleteObject(handle)
}

// DownloadLarge streams handle's contents to sk, reporting to obs,
// the supervisor-level entry point for spec.md §4.6 audio downloads.
func (sv *Supervisor) DownloadLarge(serial string, handle uint32, sk sink.ChunkSink, obs progress.Observer) error {
	sv.mu.Lock()
	d, ok := sv.devices[serial]
	sv.mu.Unlock()
	if !ok {
		return fmt.Errorf("supervisor: unknown device %q", serial)
	}
	return d.sess.GetObjectLarge(handle, serial, sk, obs, 0)
}
