package supervisor

import (
	"fmt"

	"github.com/coredevices/mtprecorder/mtp"
	"github.com/coredevices/mtprecorder/progress"
	"github.com/coredevices/mtprecorder/sink"
)

// fakeSession is an in-memory session for exercising the Supervisor's
// state machine without a real device, the way faketransport_test.go
// stands in for the USB transport one layer down.
type fakeSession struct {
	opened     bool
	closed     bool
	storages   []*mtp.Storage
	objects    map[uint32][]byte // handle -> contents
	deleted    []uint32
	uploaded   []string
	openErr    error
	reset      bool
	resetErr   error
	refreshErr error
}

func newFakeSession(storages []*mtp.Storage, objects map[uint32][]byte) *fakeSession {
	return &fakeSession{storages: storages, objects: objects}
}

func (f *fakeSession) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	f.opened = true
	return nil
}

// Reset satisfies the resettable interface the connect sequence
// probes for after a failed Open; clearing openErr here simulates a
// device that recovers after a USB port reset.
func (f *fakeSession) Reset() error {
	f.reset = true
	if f.resetErr != nil {
		return f.resetErr
	}
	f.openErr = nil
	return nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSession) RefreshStorages() error { return f.refreshErr }

func (f *fakeSession) RefreshObjects(storageID uint32) error { return f.refreshErr }

func (f *fakeSession) Storages() []*mtp.Storage { return f.storages }

func (f *fakeSession) FindObjectByName(storageID uint32, name string) (*mtp.Object, bool) {
	for _, st := range f.storages {
		if st.ID != storageID {
			continue
		}
		for _, o := range st.Objects {
			if o.Info.Filename == name {
				return o, true
			}
		}
	}
	return nil, false
}

func (f *fakeSession) GetObject(handle uint32) ([]byte, error) {
	data, ok := f.objects[handle]
	if !ok {
		return nil, fmt.Errorf("fakeSession: no object %#x", handle)
	}
	return data, nil
}

func (f *fakeSession) GetObjectLarge(handle uint32, deviceSerial string, sk sink.ChunkSink, obs progress.Observer, chunkWindow int) error {
	data, ok := f.objects[handle]
	if !ok {
		return fmt.Errorf("fakeSession: no object %#x", handle)
	}
	return sk.Append(deviceSerial, 0, data)
}

func (f *fakeSession) DeleteObject(handle uint32) error {
	f.deleted = append(f.deleted, handle)
	return nil
}

func (f *fakeSession) UploadFile(storageID uint32, filename string, data []byte) error {
	f.uploaded = append(f.uploaded, filename)
	return nil
}
