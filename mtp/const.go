package mtp

// Wire-level container types (PIMA 15740 / MTP v1.1 table 2).
const (
	UContainerUndefined = 0
	UContainerCommand   = 1
	UContainerData      = 2
	UContainerResponse  = 3
	UContainerEvent     = 4
)

var uContainerNames = map[int]string{
	UContainerUndefined: "Undefined",
	UContainerCommand:   "Command",
	UContainerData:      "Data",
	UContainerResponse:  "Response",
	UContainerEvent:     "Event",
}

// Operation codes. Only the subset this profile exercises (spec.md §6);
// the device is never asked to perform any other operation.
const (
	OC_OpenSession      = 0x1002
	OC_CloseSession     = 0x1003
	OC_GetStorageIDs    = 0x1004
	OC_GetStorageInfo   = 0x1005
	OC_GetObjectHandles = 0x1007
	OC_GetObjectInfo    = 0x1008
	OC_GetObject        = 0x1009
	OC_DeleteObject     = 0x100B
	OC_SendObjectInfo   = 0x100C
	OC_SendObject       = 0x100D
)

var OC_names = map[int]string{
	OC_OpenSession:      "OpenSession",
	OC_CloseSession:     "CloseSession",
	OC_GetStorageIDs:    "GetStorageIDs",
	OC_GetStorageInfo:   "GetStorageInfo",
	OC_GetObjectHandles: "GetObjectHandles",
	OC_GetObjectInfo:    "GetObjectInfo",
	OC_GetObject:        "GetObject",
	OC_DeleteObject:     "DeleteObject",
	OC_SendObjectInfo:   "SendObjectInfo",
	OC_SendObject:       "SendObject",
}

// Response codes. RC_OK and RC_SessionAlreadyOpen are the only codes
// given special handling (spec.md §4.5); the rest are opaque to the
// caller but named here for logging.
const (
	RC_OK                    = 0x2001
	RC_GeneralError          = 0x2002
	RC_SessionNotOpen        = 0x2003
	RC_InvalidTransactionID  = 0x2004
	RC_OperationNotSupported = 0x2005
	RC_ParameterNotSupported = 0x2006
	RC_IncompleteTransfer    = 0x2007
	RC_InvalidStorageID      = 0x2008
	RC_InvalidObjectHandle   = 0x2009
	RC_StoreFull             = 0x200C
	RC_StoreReadOnly         = 0x200E
	RC_AccessDenied          = 0x200F
	RC_StoreNotAvailable     = 0x2013
	RC_InvalidParentObject   = 0x2016
	RC_InvalidParameter      = 0x201D
	RC_SessionAlreadyOpen    = 0x201E
	RC_TransactionCancelled  = 0x201F
)

var RC_names = map[int]string{
	RC_OK:                    "OK",
	RC_GeneralError:          "GeneralError",
	RC_SessionNotOpen:        "SessionNotOpen",
	RC_InvalidTransactionID:  "InvalidTransactionID",
	RC_OperationNotSupported: "OperationNotSupported",
	RC_ParameterNotSupported: "ParameterNotSupported",
	RC_IncompleteTransfer:    "IncompleteTransfer",
	RC_InvalidStorageID:      "InvalidStorageID",
	RC_InvalidObjectHandle:   "InvalidObjectHandle",
	RC_StoreFull:             "StoreFull",
	RC_StoreReadOnly:         "StoreReadOnly",
	RC_AccessDenied:          "AccessDenied",
	RC_StoreNotAvailable:     "StoreNotAvailable",
	RC_InvalidParentObject:   "InvalidParentObject",
	RC_InvalidParameter:      "InvalidParameter",
	RC_SessionAlreadyOpen:    "SessionAlreadyOpen",
	RC_TransactionCancelled:  "TransactionCancelled",
}

// Storage type (StorageInfo.StorageType). Kept in a distinct namespace
// from FST_* below even though both define an "undefined" value at
// 0x0000 for different enums.
const (
	ST_Undefined    = 0x0000
	ST_FixedROM     = 0x0001
	ST_RemovableROM = 0x0002
	ST_FixedRAM     = 0x0003
	ST_RemovableRAM = 0x0004
)

// Filesystem type (StorageInfo.FilesystemType).
const (
	FST_Undefined           = 0x0000
	FST_GenericFlat         = 0x0001
	FST_GenericHierarchical = 0x0002
	FST_DCF                 = 0x0003
)

// Access capability (StorageInfo.AccessCapability).
const (
	AC_ReadWrite                     = 0x0000
	AC_ReadOnly                      = 0x0001
	AC_ReadOnly_with_Object_Deletion = 0x0002
)

// Association type (ObjectInfo.AssociationType).
const (
	AT_Undefined     = 0x0000
	AT_GenericFolder = 0x0001
)

// Object format codes. OFC_Undefined is what this profile uses for
// every object it creates via SendObjectInfo (the config/command file
// upload), and is also the value this profile always places in
// ObjectInfo's ThumbFormat field. ThumbFormat occupies bytes 12..13,
// so its little-endian 0x3000 reproduces the "fixed byte 0x30 at
// offset 13" behavior noted in earlier reverse-engineering.
const (
	OFC_Undefined   = 0x3000
	OFC_Association = 0x3001
	OFC_WAV         = 0x3008
	OFC_MP3         = 0xB903
)

func getName(m map[int]string, code int) string {
	if n, ok := m[code]; ok {
		return n
	}
	return "0x" + itohex(uint32(code))
}

const hexDigits = "0123456789abcdef"

func itohex(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}
