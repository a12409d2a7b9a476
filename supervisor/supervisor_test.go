package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/coredevices/mtprecorder/mtp"
)

func TestConnectReachesReadyAndPublishesConfig(t *testing.T) {
	configObj := &mtp.Object{Handle: 1, Info: mtp.ObjectInfo{Filename: configFile}}
	storages := []*mtp.Storage{{ID: 0x10001, Objects: []*mtp.Object{configObj}}}
	objects := map[uint32][]byte{1: []byte("SerialNumber=ABC123\r\n")}
	fs := newFakeSession(storages, objects)

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sv := New(ctx, store, nil)

	if err := sv.Connect(fs, "usb-0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, func() bool {
		rec, ok := store.Get("ABC123")
		return ok && rec.State == Ready
	})

	rec, ok := store.Get("ABC123")
	if !ok {
		t.Fatal("expected record under renamed serial ABC123")
	}
	if rec.Config["SerialNumber"] != "ABC123" {
		t.Errorf("config = %v", rec.Config)
	}
	if len(rec.Storage) != 1 || rec.Storage[0].ID != 0x10001 {
		t.Errorf("storage summary = %v", rec.Storage)
	}
}

func TestConnectRecoversViaResetAfterOpenFailure(t *testing.T) {
	storages := []*mtp.Storage{{ID: 1}}
	fs := newFakeSession(storages, nil)
	fs.openErr = errTest("device wedged")

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sv := New(ctx, store, nil)

	if err := sv.Connect(fs, "usb-0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, func() bool {
		rec, ok := store.Get("usb-0")
		return ok && rec.State == Ready
	})
	if !fs.reset {
		t.Error("expected a reset attempt after the first Open failure")
	}
}

func TestConnectFaultsOnOpenFailure(t *testing.T) {
	fs := newFakeSession(nil, nil)
	fs.openErr = errTest("usb gone")
	fs.resetErr = errTest("reset also failed")

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sv := New(ctx, store, nil)

	if err := sv.Connect(fs, "usb-0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	waitFor(t, func() bool {
		for _, ev := range store.Events() {
			if ev.Kind == DeviceRemoved {
				return true
			}
		}
		return false
	})

	if _, ok := store.Get("usb-0"); ok {
		t.Error("expected no record for a device that never reached Ready")
	}
}

func TestEjectClosesSession(t *testing.T) {
	storages := []*mtp.Storage{{ID: 1}}
	fs := newFakeSession(storages, nil)

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sv := New(ctx, store, nil)

	if err := sv.Connect(fs, "usb-0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool {
		rec, ok := store.Get("usb-0")
		return ok && rec.State == Ready
	})

	if err := sv.Eject("usb-0"); err != nil {
		t.Fatalf("Eject: %v", err)
	}
	// DeviceRemoved is published after sess.Close returns, so it marks
	// the end of the eject.
	waitFor(t, func() bool {
		for _, ev := range store.Events() {
			if ev.Kind == DeviceRemoved {
				return true
			}
		}
		return false
	})

	if !fs.closed {
		t.Error("expected session closed after eject")
	}
	if _, ok := store.Get("usb-0"); ok {
		t.Error("expected record removed after eject")
	}
}

func TestUploadCommandUsesFirstStorage(t *testing.T) {
	storages := []*mtp.Storage{{ID: 0x20001}}
	fs := newFakeSession(storages, nil)

	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sv := New(ctx, store, nil)

	if err := sv.Connect(fs, "usb-0"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, func() bool {
		rec, ok := store.Get("usb-0")
		return ok && rec.State == Ready
	})

	if err := sv.UploadCommand("usb-0", []byte("Record=1\r\n")); err != nil {
		t.Fatalf("UploadCommand: %v", err)
	}
	if len(fs.uploaded) != 1 || fs.uploaded[0] != commandFile {
		t.Errorf("uploaded = %v", fs.uploaded)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
