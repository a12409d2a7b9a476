// Package mtp implements the subset of the USB Media Transfer
// Protocol (v1.1) this profile's recorder devices speak: one bulk-IN
// and one bulk-OUT endpoint, a single session, and the ten operations
// listed in spec.md §6.
package mtp

import (
	"time"
)

// Container is the in-memory form of an MTP Command/Data/Response
// container, stripped of its wire framing.
type Container struct {
	Code          uint16
	SessionID     uint32
	TransactionID uint32
	Param         []uint32
}

// Uint32Array is the dataset returned by GetStorageIDs and
// GetObjectHandles: a 32-bit count followed by that many 32-bit values.
type Uint32Array struct {
	Values []uint32
}

// StorageInfo is the StorageInfo dataset (spec.md §4.3).
type StorageInfo struct {
	StorageType        uint16
	FilesystemType     uint16
	AccessCapability   uint16
	MaxCapability      uint64
	FreeSpaceInBytes   uint64
	FreeSpaceInObjects uint32
	StorageDescription string
	VolumeLabel        string
}

func (s *StorageInfo) IsHierarchical() bool {
	return s.FilesystemType == FST_GenericHierarchical
}

func (s *StorageInfo) IsRemovable() bool {
	return s.StorageType == ST_RemovableROM || s.StorageType == ST_RemovableRAM
}

// UsedBytes is total capacity minus free space, computed rather than
// carried on the wire (spec.md §3).
func (s *StorageInfo) UsedBytes() uint64 {
	if s.FreeSpaceInBytes > s.MaxCapability {
		return 0
	}
	return s.MaxCapability - s.FreeSpaceInBytes
}

// ObjectInfo is the ObjectInfo dataset (spec.md §4.3), a standard PIMA
// 15740 fixed 52-byte prefix followed by four MTP strings. Field order
// and sizes fix the wire offsets: StorageID(4) ObjectFormat(2)
// ProtectionStatus(2) CompressedSize(4) ThumbFormat(2)
// ThumbCompressedSize(4) ThumbPixWidth(4) ThumbPixHeight(4)
// ImagePixWidth(4) ImagePixHeight(4) ImageBitDepth(4) ParentObject(4)
// AssociationType(2) AssociationDesc(4) SequenceNumber(4) == 52 bytes,
// matching spec.md's offsets (format @4..6, size @8..12, association
// type @42..44, association description @44..48) exactly.
type ObjectInfo struct {
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
	Filename            string
	CaptureDate         time.Time
	ModificationDate    time.Time
	Keywords            string
}

// usbHdrLen is the size of the 12-byte Container header: 4 (length) +
// 2 (type) + 2 (code) + 4 (transaction id).
const usbHdrLen = 4 + 2 + 2 + 4

// packetSize is MTP_PACKET_MAX_SIZE (spec.md §4.1).
const packetSize = 512
