package mtp

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"
)

// objInfoStr is a real ObjectInfo dataset captured off the wire: a
// folder association entry named "Music".
const objInfoStr = `0100 0100
0130 0000 0010 0000 0000 0000 0000 0000
0000 0000 0000 0000 0000 0000 0000 0000
0000 0000 0000 0000 0000 0000 0000 0000
064d 0075 0073 0069 0063 0000 0000 1032
0030 0030 0030 0030 0031 0030 0031 0054
0031 0039 0031 0031 0033 0030 0000 0000`

func parseHex(s string) []byte {
	hex := strings.Replace(s, " ", "", -1)
	hex = strings.Replace(hex, "\n", "", -1)
	buf := bytes.NewBufferString(hex)
	bin := make([]byte, len(hex)/2)

	_, err := fmt.Fscanf(buf, "%x", &bin)
	if err != nil {
		panic(err)
	}
	if buf.Len() > 0 {
		panic("consume")
	}
	return bin
}

func diffIndex(a, b []byte) error {
	l := len(b)
	if len(a) < len(b) {
		l = len(a)
	}
	for i := 0; i < l; i++ {
		if a[i] != b[i] {
			return fmt.Errorf("data idx 0x%x got %x want %x", i, a[i], b[i])
		}
	}
	if len(a) != len(b) {
		return fmt.Errorf("length mismatch got %d want %d", len(a), len(b))
	}
	return nil
}

func TestDecodeEncodeObjectInfoRoundTrip(t *testing.T) {
	bin := parseHex(objInfoStr)
	var info ObjectInfo
	if err := Decode(bytes.NewBuffer(bin), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Filename != "Music" {
		t.Errorf("filename = %q, want Music", info.Filename)
	}
	if info.AssociationType != AT_Undefined {
		t.Errorf("association type = %#x", info.AssociationType)
	}

	out := &bytes.Buffer{}
	if err := Encode(out, &info); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := diffIndex(out.Bytes(), bin); err != nil {
		t.Error(err)
	}
}

func TestStorageInfoRoundTrip(t *testing.T) {
	want := &StorageInfo{
		StorageType:        ST_FixedRAM,
		FilesystemType:     FST_GenericHierarchical,
		AccessCapability:   AC_ReadWrite,
		MaxCapability:      32 << 30,
		FreeSpaceInBytes:   12 << 30,
		FreeSpaceInObjects: 0xFFFFFFFF,
		StorageDescription: "Internal Storage",
		VolumeLabel:        "",
	}

	buf := &bytes.Buffer{}
	if err := Encode(buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got := &StorageInfo{}
	if err := Decode(buf, got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if got.UsedBytes() != 20<<30 {
		t.Errorf("UsedBytes = %d, want %d", got.UsedBytes(), 20<<30)
	}
	if !got.IsHierarchical() {
		t.Errorf("expected hierarchical filesystem")
	}
}

func TestUint32ArrayRoundTrip(t *testing.T) {
	want := &Uint32Array{Values: []uint32{1, 2, 3, 0xFFFFFFFF}}
	buf := &bytes.Buffer{}
	if err := Encode(buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got := &Uint32Array{}
	if err := Decode(buf, got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Values) != len(want.Values) {
		t.Fatalf("got %d values, want %d", len(got.Values), len(want.Values))
	}
	for i := range want.Values {
		if got.Values[i] != want.Values[i] {
			t.Errorf("value[%d] = %d, want %d", i, got.Values[i], want.Values[i])
		}
	}
}

func TestEncodeStrEmpty(t *testing.T) {
	b, err := encodeStr("")
	if err != nil {
		t.Fatalf("unexpected encode error %v", err)
	}
	if string(b) != "\000" {
		t.Fatalf("empty string encode mismatch %q", b)
	}
}

func TestDecodeTime(t *testing.T) {
	b, err := encodeStr("20120101T010022")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeTime(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := time.Date(2012, 1, 1, 1, 0, 22, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeTimeEmpty(t *testing.T) {
	b, err := encodeStr("")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeTime(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("got %v, want zero time", got)
	}
}
