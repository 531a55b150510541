package bytepipe

import (
	"io"
	"sync/atomic"
	"time"
)

// WriteHalf is the write-only facade over a Pipe. It translates stream
// semantics into pipe appends and rejects every read-style operation
// with ErrNotSupported.
//
// Closing the half closes the pipe's input end: buffered bytes stay
// readable, and readers see EOF once they drain.
type WriteHalf struct {
	pipe   *Pipe
	closed atomic.Bool
}

var (
	_ io.Writer     = (*WriteHalf)(nil)
	_ io.ByteWriter = (*WriteHalf)(nil)
	_ io.Closer     = (*WriteHalf)(nil)
)

// Write appends p to the pipe, blocking while the pipe is full. It
// returns len(p) on success and 0 with an error otherwise. An append
// that fails while waiting for space buffers nothing; with Sync set, a
// failure of the flush that follows leaves p's bytes buffered.
func (w *WriteHalf) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrDisposed
	}
	if err := w.pipe.Append(p, 0, len(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteByte appends a single byte.
func (w *WriteHalf) WriteByte(b byte) error {
	if w.closed.Load() {
		return ErrDisposed
	}
	buf := [1]byte{b}
	return w.pipe.Append(buf[:], 0, 1)
}

// Flush blocks until the pipe has drained to empty, honoring the write
// timeout.
func (w *WriteHalf) Flush() error {
	if w.closed.Load() {
		return ErrDisposed
	}
	return w.pipe.Flush()
}

// Close closes this half and the pipe's input end. Readers pending on
// an empty buffer wake and report EOF. Close is idempotent.
func (w *WriteHalf) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.pipe.closeIn()
	return nil
}

// Len returns the number of bytes currently buffered in the pipe.
func (w *WriteHalf) Len() int {
	return w.pipe.Len()
}

// Position reports the write position, which for a pipe is always the
// buffered length.
func (w *WriteHalf) Position() int64 {
	return int64(w.pipe.Len())
}

// SetPosition always fails: pipes cannot seek.
func (w *WriteHalf) SetPosition(int64) error {
	return ErrNotSupported
}

// Seek always fails: pipes cannot seek.
func (w *WriteHalf) Seek(int64, int) (int64, error) {
	return 0, ErrNotSupported
}

// SetLength always fails: a pipe's length is governed by appends and
// drains.
func (w *WriteHalf) SetLength(int64) error {
	return ErrNotSupported
}

// Read always fails: this half is write-only.
func (w *WriteHalf) Read([]byte) (int, error) {
	return 0, ErrNotSupported
}

// ReadByte always fails: this half is write-only.
func (w *WriteHalf) ReadByte() (byte, error) {
	return 0, ErrNotSupported
}

// SetWriteTimeout bounds how long writes and flushes through this half
// may block.
func (w *WriteHalf) SetWriteTimeout(d time.Duration) error {
	w.pipe.SetWriteTimeout(d)
	return nil
}

// SetReadTimeout always fails: this half is write-only.
func (w *WriteHalf) SetReadTimeout(time.Duration) error {
	return ErrNotSupported
}

// CanWrite reports whether writes can still succeed: the half is open
// and the read end has not closed.
func (w *WriteHalf) CanWrite() bool {
	return !w.closed.Load() && !w.pipe.outEndClosed()
}

// CanRead always reports false.
func (w *WriteHalf) CanRead() bool { return false }

// CanSeek always reports false.
func (w *WriteHalf) CanSeek() bool { return false }

// CanTimeout always reports true.
func (w *WriteHalf) CanTimeout() bool { return true }

// Pipe returns the owning pipe, or nil when PipeInvisible is set in
// the input-direction flags.
func (w *WriteHalf) Pipe() *Pipe {
	if w.pipe.InFlags()&PipeInvisible != 0 {
		return nil
	}
	return w.pipe
}
