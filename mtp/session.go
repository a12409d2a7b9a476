package mtp

import (
	"bytes"
	"fmt"
	"sync"
)

// sessionID is fixed for this profile (spec.md §3); the device
// doesn't care what value session() picks, and fixing it keeps the
// wire trace reproducible across runs.
const sessionID = 1

// Storage is the in-memory projection of a StorageInfo dataset plus
// the objects most recently enumerated under it (spec.md §3).
type Storage struct {
	ID   uint32
	Info StorageInfo

	Objects []*Object
}

// Object is the in-memory projection of an ObjectInfo dataset.
type Object struct {
	Handle uint32
	Info   ObjectInfo
}

// Session is the per-device state the Session & Object Model owns:
// whether a session is open, and the most recently enumerated storage
// and object lists. All access is serialized by mu — concurrent issue
// of two operations against the same device is forbidden (spec.md
// §5) and this is where that rule is enforced.
type Session struct {
	mu sync.Mutex

	dev     *Device
	open    bool
	Storage []*Storage
}

// NewSession wraps a Device that has not yet opened a session.
func NewSession(dev *Device) *Session {
	return &Session{dev: dev}
}

// Open issues OpenSession. RC_SessionAlreadyOpen is treated as
// success (spec.md §4.5); any other non-OK code is returned as-is.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return nil
	}

	var req, rep Container
	req.Code = OC_OpenSession
	req.Param = []uint32{sessionID}

	// The session is installed only after the exchange, so OpenSession
	// itself goes out with transaction id 0.
	if err := s.dev.RunTransaction(&req, &rep, nil, nil, 0); err != nil {
		if ms, ok := err.(*MtpStatus); !ok || ms.Code != RC_SessionAlreadyOpen {
			return err
		}
	}
	s.dev.session = &sessionData{sid: sessionID, tid: 0}
	s.open = true
	return nil
}

// Close issues CloseSession. It is a no-op if no session is open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}

	var req, rep Container
	req.Code = OC_CloseSession
	err := s.dev.RunTransaction(&req, &rep, nil, nil, 0)
	s.dev.session = nil
	s.open = false
	return err
}

// RefreshStorages replaces the storage list with a fresh
// GetStorageIDs + GetStorageInfo sweep, each with an empty object
// list (spec.md §4.5).
func (s *Session) RefreshStorages() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids Uint32Array
	if err := s.runDataIn(OC_GetStorageIDs, nil, &ids); err != nil {
		return err
	}

	storages := make([]*Storage, 0, len(ids.Values))
	for _, id := range ids.Values {
		var info StorageInfo
		if err := s.runDataIn(OC_GetStorageInfo, []uint32{id}, &info); err != nil {
			return err
		}
		storages = append(storages, &Storage{ID: id, Info: info})
	}
	s.Storage = storages
	return nil
}

// RefreshObjects replaces the object list of the storage identified by
// storageID with a fresh GetObjectHandles + GetObjectInfo sweep
// (spec.md §4.5: object format 0, parent 0xFFFFFFFF — "all objects
// directly under the storage root").
func (s *Session) RefreshObjects(storageID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.findStorage(storageID)
	if st == nil {
		return fmt.Errorf("mtp: unknown storage %#x", storageID)
	}

	var handles Uint32Array
	if err := s.runDataIn(OC_GetObjectHandles, []uint32{storageID, 0, 0xFFFFFFFF}, &handles); err != nil {
		return err
	}

	objects := make([]*Object, 0, len(handles.Values))
	for _, h := range handles.Values {
		var info ObjectInfo
		if err := s.runDataIn(OC_GetObjectInfo, []uint32{h}, &info); err != nil {
			return err
		}
		objects = append(objects, &Object{Handle: h, Info: info})
	}
	st.Objects = objects
	return nil
}

// Storages returns the most recently enumerated storage list, for
// callers outside this package (the supervisor) that only need to
// read it.
func (s *Session) Storages() []*Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Storage
}

func (s *Session) findStorage(id uint32) *Storage {
	for _, st := range s.Storage {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// FindObjectByName looks up a previously enumerated object by exact
// file name within the given storage, the way the supervisor locates
// config.txt/command.txt.
func (s *Session) FindObjectByName(storageID uint32, name string) (*Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.findStorage(storageID)
	if st == nil {
		return nil, false
	}
	for _, o := range st.Objects {
		if o.Info.Filename == name {
			return o, true
		}
	}
	return nil, false
}

// GetObject downloads handle's full contents into memory. Intended
// for small files (spec.md §4.5); large audio objects use
// largeobject.go's streaming variant instead.
func (s *Session) GetObject(handle uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req, rep Container
	req.Code = OC_GetObject
	req.Param = []uint32{handle}
	var buf bytes.Buffer
	if err := s.dev.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeleteObject removes handle from the device and, on success, from
// the in-memory object list of whichever storage currently lists it.
func (s *Session) DeleteObject(handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req, rep Container
	req.Code = OC_DeleteObject
	req.Param = []uint32{handle, 0}
	if err := s.dev.RunTransaction(&req, &rep, nil, nil, 0); err != nil {
		return err
	}

	for _, st := range s.Storage {
		for i, o := range st.Objects {
			if o.Handle == handle {
				st.Objects = append(st.Objects[:i], st.Objects[i+1:]...)
				break
			}
		}
	}
	return nil
}

// SendObjectInfo uploads an ObjectInfo dataset announcing an upcoming
// SendObject, as spec.md §4.5 and §6 (command/config file upload)
// require. The returned handle feeds the following SendObject call.
func (s *Session) SendObjectInfo(storageID uint32, size uint32, filename string) (handle uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := &ObjectInfo{
		StorageID:       storageID,
		ObjectFormat:    OFC_Undefined,
		ThumbFormat:     OFC_Undefined,
		CompressedSize:  size,
		AssociationType: AT_Undefined,
		Filename:        filename,
	}

	var req, rep Container
	req.Code = OC_SendObjectInfo
	req.Param = []uint32{storageID, 0xFFFFFFFF}

	buf := &bytes.Buffer{}
	if err := Encode(buf, info); err != nil {
		return 0, err
	}
	if err := s.dev.RunTransaction(&req, &rep, nil, buf, int64(buf.Len())); err != nil {
		return 0, err
	}
	if len(rep.Param) < 3 {
		return 0, &ProtocolError{Reason: "SendObjectInfo response missing new handle parameter"}
	}
	return rep.Param[2], nil
}

// SendObject uploads the raw bytes announced by the most recent
// SendObjectInfo call in this session.
func (s *Session) SendObject(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var req, rep Container
	req.Code = OC_SendObject
	return s.dev.RunTransaction(&req, &rep, nil, bytes.NewReader(data), int64(len(data)))
}

// UploadFile is the end-to-end command/config file upload sequence
// from spec.md §6: delete any existing object of that name in
// storageID, announce the new one, then send its bytes.
func (s *Session) UploadFile(storageID uint32, filename string, data []byte) error {
	if existing, ok := s.FindObjectByName(storageID, filename); ok {
		if err := s.DeleteObject(existing.Handle); err != nil {
			return err
		}
	}
	if _, err := s.SendObjectInfo(storageID, uint32(len(data)), filename); err != nil {
		return err
	}
	return s.SendObject(data)
}

func (s *Session) runDataIn(code uint16, params []uint32, dest interface{}) error {
	var req, rep Container
	req.Code = code
	req.Param = params
	var buf bytes.Buffer
	if err := s.dev.RunTransaction(&req, &rep, &buf, nil, 0); err != nil {
		return err
	}
	if err := Decode(&buf, dest); err != nil {
		return &ParseError{What: fmt.Sprintf("%T", dest), Err: err}
	}
	return nil
}
