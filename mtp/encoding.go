package mtp

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

var byteOrder = binary.LittleEndian

// decodeStr reads an MTP string: one length-prefix byte counting
// UTF-16 code units including the null terminator, then that many
// UTF-16LE code units (spec.md §4.3).
func decodeStr(r io.Reader) (string, error) {
	var szSlice [1]byte
	if _, err := io.ReadFull(r, szSlice[:]); err != nil {
		return "", err
	}
	sz := int(szSlice[0])
	if sz == 0 {
		return "", nil
	}

	data := make([]byte, 2*sz)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", fmt.Errorf("mtp: short string read: %w", err)
	}

	utfStr := make([]byte, 4*sz)
	w := 0
	for i := 0; i < 2*sz; i += 2 {
		cp := byteOrder.Uint16(data[i:])
		w += utf8.EncodeRune(utfStr[w:], rune(cp))
	}
	if w > 0 && utfStr[w-1] == 0 {
		w--
	}
	return string(utfStr[:w]), nil
}

// encodeStr is the inverse of decodeStr. An empty string encodes as a
// single zero byte.
func encodeStr(s string) ([]byte, error) {
	if s == "" {
		return []byte{0}, nil
	}

	buf := make([]byte, 1, 2*len(s)+3)
	codepoints := 0
	var ch [2]byte
	for _, r := range s {
		byteOrder.PutUint16(ch[:], uint16(r))
		buf = append(buf, ch[0], ch[1])
		codepoints++
	}
	buf = append(buf, 0, 0)
	codepoints++
	if codepoints > 254 {
		return nil, fmt.Errorf("mtp: string %q too long for MTP string encoding", s)
	}
	buf[0] = byte(codepoints)
	return buf, nil
}

// MTP DateTime strings (spec.md §4.3): YYYYMMDDThhmmss, optionally
// with a trailing ".s" fraction or, on some devices, a trailing "Z".
const timeFormat = "20060102T150405"

var zeroTime = time.Time{}

func encodeTime(t time.Time) ([]byte, error) {
	s := ""
	if !t.Equal(zeroTime) {
		s = t.Format(timeFormat)
	}
	return encodeStr(s)
}

func decodeTime(r io.Reader) (time.Time, error) {
	s, err := decodeStr(r)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" {
		return time.Time{}, nil
	}
	s = strings.TrimRight(s, "Z")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return time.Parse(timeFormat, s)
}

func decodeUint32Array(r io.Reader) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		if err := binary.Read(r, byteOrder, &out[i]); err != nil {
			return nil, fmt.Errorf("mtp: short array read at index %d: %w", i, err)
		}
	}
	return out, nil
}

func encodeUint32Array(w io.Writer, vals []uint32) error {
	if err := binary.Write(w, byteOrder, uint32(len(vals))); err != nil {
		return err
	}
	return binary.Write(w, byteOrder, vals)
}

// Decode fills a Uint32Array, StorageInfo or ObjectInfo from its wire
// encoding. Unlike the teacher's generic reflection-based codec, this
// profile only ever exchanges these three dataset shapes, so each gets
// a direct decoder instead of a reflection-driven generic one — PIMA
// object-property descriptors (range/enum forms, data-type selectors)
// that justified the teacher's generic machinery are out of scope
// here (spec.md §1 non-goals: "PIMA-style object properties").
func Decode(r io.Reader, dest interface{}) error {
	switch v := dest.(type) {
	case *Uint32Array:
		vals, err := decodeUint32Array(r)
		if err != nil {
			return err
		}
		v.Values = vals
		return nil
	case *StorageInfo:
		return decodeStorageInfo(r, v)
	case *ObjectInfo:
		return decodeObjectInfo(r, v)
	default:
		return fmt.Errorf("mtp: Decode: unsupported type %T", dest)
	}
}

// Encode is the inverse of Decode.
func Encode(w io.Writer, src interface{}) error {
	switch v := src.(type) {
	case *Uint32Array:
		return encodeUint32Array(w, v.Values)
	case *StorageInfo:
		return encodeStorageInfo(w, v)
	case *ObjectInfo:
		return encodeObjectInfo(w, v)
	default:
		return fmt.Errorf("mtp: Encode: unsupported type %T", src)
	}
}

func decodeStorageInfo(r io.Reader, s *StorageInfo) error {
	var fixed struct {
		StorageType        uint16
		FilesystemType     uint16
		AccessCapability   uint16
		MaxCapability      uint64
		FreeSpaceInBytes   uint64
		FreeSpaceInObjects uint32
	}
	if err := binary.Read(r, byteOrder, &fixed); err != nil {
		return fmt.Errorf("mtp: StorageInfo fixed header: %w", err)
	}
	desc, err := decodeStr(r)
	if err != nil {
		return fmt.Errorf("mtp: StorageInfo description: %w", err)
	}
	vol, err := decodeStr(r)
	if err != nil {
		return fmt.Errorf("mtp: StorageInfo volume label: %w", err)
	}

	s.StorageType = fixed.StorageType
	s.FilesystemType = fixed.FilesystemType
	s.AccessCapability = fixed.AccessCapability
	s.MaxCapability = fixed.MaxCapability
	s.FreeSpaceInBytes = fixed.FreeSpaceInBytes
	s.FreeSpaceInObjects = fixed.FreeSpaceInObjects
	s.StorageDescription = desc
	s.VolumeLabel = vol
	return nil
}

func encodeStorageInfo(w io.Writer, s *StorageInfo) error {
	fixed := struct {
		StorageType        uint16
		FilesystemType     uint16
		AccessCapability   uint16
		MaxCapability      uint64
		FreeSpaceInBytes   uint64
		FreeSpaceInObjects uint32
	}{
		s.StorageType, s.FilesystemType, s.AccessCapability,
		s.MaxCapability, s.FreeSpaceInBytes, s.FreeSpaceInObjects,
	}
	if err := binary.Write(w, byteOrder, fixed); err != nil {
		return err
	}
	desc, err := encodeStr(s.StorageDescription)
	if err != nil {
		return err
	}
	if _, err := w.Write(desc); err != nil {
		return err
	}
	vol, err := encodeStr(s.VolumeLabel)
	if err != nil {
		return err
	}
	_, err = w.Write(vol)
	return err
}

// objectInfoFixed is the 52-byte ObjectInfo prefix, byte for byte
// (see types.go for the offset accounting).
type objectInfoFixed struct {
	StorageID           uint32
	ObjectFormat        uint16
	ProtectionStatus    uint16
	CompressedSize      uint32
	ThumbFormat         uint16
	ThumbCompressedSize uint32
	ThumbPixWidth       uint32
	ThumbPixHeight      uint32
	ImagePixWidth       uint32
	ImagePixHeight      uint32
	ImageBitDepth       uint32
	ParentObject        uint32
	AssociationType     uint16
	AssociationDesc     uint32
	SequenceNumber      uint32
}

func decodeObjectInfo(r io.Reader, o *ObjectInfo) error {
	var fixed objectInfoFixed
	if err := binary.Read(r, byteOrder, &fixed); err != nil {
		return fmt.Errorf("mtp: ObjectInfo fixed header: %w", err)
	}

	name, err := decodeStr(r)
	if err != nil {
		return fmt.Errorf("mtp: ObjectInfo filename: %w", err)
	}
	created, err := decodeTime(r)
	if err != nil {
		return fmt.Errorf("mtp: ObjectInfo capture date: %w", err)
	}
	modified, err := decodeTime(r)
	if err != nil {
		return fmt.Errorf("mtp: ObjectInfo modification date: %w", err)
	}
	keywords, err := decodeStr(r)
	if err != nil {
		return fmt.Errorf("mtp: ObjectInfo keywords: %w", err)
	}

	o.StorageID = fixed.StorageID
	o.ObjectFormat = fixed.ObjectFormat
	o.ProtectionStatus = fixed.ProtectionStatus
	o.CompressedSize = fixed.CompressedSize
	o.ThumbFormat = fixed.ThumbFormat
	o.ThumbCompressedSize = fixed.ThumbCompressedSize
	o.ThumbPixWidth = fixed.ThumbPixWidth
	o.ThumbPixHeight = fixed.ThumbPixHeight
	o.ImagePixWidth = fixed.ImagePixWidth
	o.ImagePixHeight = fixed.ImagePixHeight
	o.ImageBitDepth = fixed.ImageBitDepth
	o.ParentObject = fixed.ParentObject
	o.AssociationType = fixed.AssociationType
	o.AssociationDesc = fixed.AssociationDesc
	o.SequenceNumber = fixed.SequenceNumber
	o.Filename = name
	o.CaptureDate = created
	o.ModificationDate = modified
	o.Keywords = keywords
	return nil
}

func encodeObjectInfo(w io.Writer, o *ObjectInfo) error {
	fixed := objectInfoFixed{
		StorageID:           o.StorageID,
		ObjectFormat:        o.ObjectFormat,
		ProtectionStatus:    o.ProtectionStatus,
		CompressedSize:      o.CompressedSize,
		ThumbFormat:         o.ThumbFormat,
		ThumbCompressedSize: o.ThumbCompressedSize,
		ThumbPixWidth:       o.ThumbPixWidth,
		ThumbPixHeight:      o.ThumbPixHeight,
		ImagePixWidth:       o.ImagePixWidth,
		ImagePixHeight:      o.ImagePixHeight,
		ImageBitDepth:       o.ImageBitDepth,
		ParentObject:        o.ParentObject,
		AssociationType:     o.AssociationType,
		AssociationDesc:     o.AssociationDesc,
		SequenceNumber:      o.SequenceNumber,
	}
	if err := binary.Write(w, byteOrder, fixed); err != nil {
		return err
	}

	for _, s := range []string{o.Filename} {
		enc, err := encodeStr(s)
		if err != nil {
			return err
		}
		if _, err := w.Write(enc); err != nil {
			return err
		}
	}
	for _, t := range []time.Time{o.CaptureDate, o.ModificationDate} {
		enc, err := encodeTime(t)
		if err != nil {
			return err
		}
		if _, err := w.Write(enc); err != nil {
			return err
		}
	}
	enc, err := encodeStr(o.Keywords)
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}
