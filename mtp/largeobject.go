package mtp

import (
	"github.com/coredevices/mtprecorder/progress"
	"github.com/coredevices/mtprecorder/sink"
)

// DefaultChunkWindow is the number of bulk-IN packets accumulated in
// memory before being flushed to the chunk sink (spec.md §4.6). This
// bounds peak memory to one window regardless of how large the
// recording is.
const DefaultChunkWindow = 50000

// GetObjectLarge is the large-object specialization of GetObject
// (spec.md §4.6): it streams handle's contents packet by packet,
// flushing a numbered chunk to sk every chunkWindow packets instead of
// buffering the whole object, and reports progress to obs as it goes.
// chunkWindow <= 0 uses DefaultChunkWindow.
func (s *Session) GetObjectLarge(handle uint32, deviceSerial string, sk sink.ChunkSink, obs progress.Observer, chunkWindow int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chunkWindow <= 0 {
		chunkWindow = DefaultChunkWindow
	}

	tracker := progress.NewTracker(obs, 0)
	cw := &chunkWriter{serial: deviceSerial, sink: sk, tracker: tracker, window: chunkWindow}

	var req, rep Container
	req.Code = OC_GetObject
	req.Param = []uint32{handle}

	if err := s.dev.RunTransaction(&req, &rep, cw, nil, 0); err != nil {
		tracker.Finish(false)
		return err
	}
	if err := cw.flush(); err != nil {
		tracker.Finish(false)
		return err
	}
	tracker.Finish(true)
	return nil
}

// chunkWriter is the io.Writer the Transaction Engine streams a Data
// phase into. drainData calls Write once per bulk-IN packet received
// (see transaction.go), so counting Write calls is counting packets.
type chunkWriter struct {
	serial  string
	sink    sink.ChunkSink
	tracker *progress.Tracker
	window  int

	buf        []byte
	packets    int
	chunkIndex int
}

func (c *chunkWriter) SetTotal(total int64) {
	c.tracker.SetTotal(total)
}

func (c *chunkWriter) Write(b []byte) (int, error) {
	c.buf = append(c.buf, b...)
	c.packets++
	c.tracker.Add(len(b))

	if c.packets >= c.window {
		if err := c.flush(); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func (c *chunkWriter) flush() error {
	if len(c.buf) == 0 {
		return nil
	}
	if err := c.sink.Append(c.serial, c.chunkIndex, c.buf); err != nil {
		return err
	}
	c.chunkIndex++
	c.buf = c.buf[:0]
	c.packets = 0
	return nil
}
