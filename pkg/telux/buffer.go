package telux

import "fmt"

// Buffer is a plain StreamBuffer backed by a byte slice, for backends that do not need
// anything device specific.
type Buffer struct {
	raw      []byte
	minSize  int
	dataSize int
}

var _ StreamBuffer = (*Buffer)(nil)

// NewBuffer allocates a buffer of maxSize bytes with the given preferred transfer size.
func NewBuffer(minSize, maxSize int) *Buffer {
	if minSize > maxSize {
		minSize = maxSize
	}
	return &Buffer{raw: make([]byte, maxSize), minSize: minSize}
}

func (b *Buffer) RawBuffer() []byte { return b.raw }
func (b *Buffer) MinSize() int      { return b.minSize }
func (b *Buffer) MaxSize() int      { return len(b.raw) }
func (b *Buffer) DataSize() int     { return b.dataSize }

// SetDataSize marks the first n bytes of RawBuffer as valid.
func (b *Buffer) SetDataSize(n int) error {
	if n < 0 || n > len(b.raw) {
		return fmt.Errorf("data size %d out of range [0, %d]", n, len(b.raw))
	}
	b.dataSize = n
	return nil
}

// Reset clears the valid byte count; the contents are left as is.
func (b *Buffer) Reset() { b.dataSize = 0 }

// ChunkSize is the transfer size to use with buf: MinSize when the stream states a
// preference, MaxSize otherwise.
func ChunkSize(buf StreamBuffer) int {
	if n := buf.MinSize(); n > 0 && n <= buf.MaxSize() {
		return n
	}
	return buf.MaxSize()
}
