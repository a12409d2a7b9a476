// Package sink defines the durable-storage boundary that large-object
// downloads write chunks to. The document store that actually
// persists them lives outside this repository; this package owns only
// the interface and a small in-memory implementation for tests.
package sink

import (
	"fmt"
	"sync"
)

// ChunkSink durably appends one numbered chunk of a device object's
// contents. chunkIndex is monotonically increasing per (deviceSerial,
// object); the final chunk of a download may be short.
type ChunkSink interface {
	Append(deviceSerial string, chunkIndex int, data []byte) error
}

// MemorySink is a ChunkSink that keeps chunks in memory, ordered by
// index. It exists for tests and for callers that haven't wired a
// real document store yet.
type MemorySink struct {
	mu     sync.Mutex
	chunks map[string]map[int][]byte
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{chunks: map[string]map[int][]byte{}}
}

func (m *MemorySink) Append(deviceSerial string, chunkIndex int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIndex, ok := m.chunks[deviceSerial]
	if !ok {
		byIndex = map[int][]byte{}
		m.chunks[deviceSerial] = byIndex
	}
	if _, dup := byIndex[chunkIndex]; dup {
		return fmt.Errorf("sink: duplicate chunk %d for device %s", chunkIndex, deviceSerial)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	byIndex[chunkIndex] = stored
	return nil
}

// Chunks returns the chunks appended for deviceSerial in index order.
// It is a test helper, not part of the ChunkSink contract.
func (m *MemorySink) Chunks(deviceSerial string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	byIndex := m.chunks[deviceSerial]
	out := make([][]byte, len(byIndex))
	for i, b := range byIndex {
		out[i] = b
	}
	return out
}

// Bytes concatenates every chunk for deviceSerial, in index order. A
// test convenience for asserting on the reassembled payload.
func (m *MemorySink) Bytes(deviceSerial string) []byte {
	chunks := m.Chunks(deviceSerial)
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
