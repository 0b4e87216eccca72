package simaudio

import (
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/srg/tsamp/pkg/telux"
)

// TraceRecord is one completed or rejected simulated operation.
type TraceRecord struct {
	At       time.Time
	StreamID string
	Op       string
	Bytes    int
	Status   telux.Status
	Code     telux.ErrorCode
	Stalled  bool
}

// trace keeps the most recent records; older ones are overwritten.
type trace struct {
	buffer     mpmc.RichOverlappedRingBuffer[TraceRecord]
	overwrites atomic.Uint64
}

func newTrace(size uint32) *trace {
	return &trace{buffer: mpmc.NewOverlappedRingBuffer[TraceRecord](size)}
}

func (t *trace) add(rec TraceRecord) {
	rec.At = time.Now()
	overwrites, err := t.buffer.EnqueueM(rec)
	if err == nil {
		t.overwrites.Add(uint64(overwrites))
	}
}

// drain removes and returns every buffered record, oldest first.
func (t *trace) drain() []TraceRecord {
	var out []TraceRecord
	for !t.buffer.IsEmpty() {
		rec, err := t.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out
}
