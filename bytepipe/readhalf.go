package bytepipe

import (
	"io"
	"sync/atomic"
	"time"
)

// DefaultDrainSize is the buffer cap used by DrainSome.
const DefaultDrainSize = 65536

// writeToChunkSize is the scratch-buffer size used by WriteTo.
const writeToChunkSize = 4096

// ReadHalf is the read-only facade over a Pipe. It translates pipe
// drains into stream semantics and rejects every write-style operation
// with ErrNotSupported.
//
// Multiple goroutines may read concurrently; each drain is atomic, but
// the order in which concurrent readers observe bytes is unspecified.
//
// Closing the half closes the pipe's output end and discards any
// buffered bytes; blocked writers wake and fail.
type ReadHalf struct {
	pipe   *Pipe
	closed atomic.Bool
}

var (
	_ io.Reader     = (*ReadHalf)(nil)
	_ io.ByteReader = (*ReadHalf)(nil)
	_ io.WriterTo   = (*ReadHalf)(nil)
	_ io.Closer     = (*ReadHalf)(nil)
)

// Read blocks until at least one byte is available, then copies up to
// len(p) buffered bytes into p. It returns io.EOF once the write end
// has closed and the buffer is empty.
func (r *ReadHalf) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, ErrDisposed
	}
	if len(p) == 0 && p != nil {
		return 0, nil
	}
	n, err := r.pipe.DrainInto(p, 0, len(p))
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// ReadByte blocks until a byte is available and consumes it. It
// returns io.EOF once the write end has closed and the buffer is
// empty.
func (r *ReadHalf) ReadByte() (byte, error) {
	if r.closed.Load() {
		return 0, ErrDisposed
	}
	v, err := r.pipe.DrainByte()
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, io.EOF
	}
	return byte(v), nil
}

// DrainAvailable blocks until data is available, then returns up to
// max buffered bytes in a freshly allocated buffer. It returns io.EOF
// once the write end has closed and the buffer is empty. max must be
// positive.
func (r *ReadHalf) DrainAvailable(max int) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrDisposed
	}
	buf, err := r.pipe.DrainAvailable(max)
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, io.EOF
	}
	return buf, nil
}

// DrainSome is DrainAvailable with a DefaultDrainSize cap.
func (r *ReadHalf) DrainSome() ([]byte, error) {
	return r.DrainAvailable(DefaultDrainSize)
}

// DiscardBuffered drops every buffered byte and wakes all waiters.
func (r *ReadHalf) DiscardBuffered() error {
	if r.closed.Load() {
		return ErrDisposed
	}
	r.pipe.Clear()
	return nil
}

// Flush discards every buffered byte. A flush on the read half of a
// pipe is a clear, not a drain; DiscardBuffered is the same operation
// under its honest name.
func (r *ReadHalf) Flush() error {
	return r.DiscardBuffered()
}

// Poll blocks until data is available or the timeout elapses, without
// consuming anything. The timeout is truncated to whole milliseconds.
// Only SelectRead is supported; other modes fail with an argument
// error.
func (r *ReadHalf) Poll(timeout time.Duration, mode SelectMode) (bool, error) {
	if mode != SelectRead {
		return false, errPollMode(mode)
	}
	if r.closed.Load() {
		return false, ErrDisposed
	}
	if timeout >= 0 {
		timeout = timeout.Truncate(time.Millisecond)
	}
	return r.pipe.Poll(timeout)
}

// WriteTo drains the pipe into w until EOF, forwarding one bounded
// chunk at a time. It returns the number of bytes written.
func (r *ReadHalf) WriteTo(w io.Writer) (int64, error) {
	var buf [writeToChunkSize]byte
	var written int64
	for {
		n, err := r.Read(buf[:])
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			written += int64(wn)
			if werr != nil {
				return written, werr
			}
			if wn < n {
				return written, io.ErrShortWrite
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// Close closes this half and the pipe's output end, discarding any
// buffered bytes. Blocked writers wake with ErrOutputClosed. Close is
// idempotent.
func (r *ReadHalf) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.pipe.closeOut()
	return nil
}

// Len returns the number of bytes currently buffered in the pipe.
func (r *ReadHalf) Len() int {
	return r.pipe.Len()
}

// Position reports the read position, which for a pipe is always 0.
func (r *ReadHalf) Position() int64 { return 0 }

// SetPosition always fails: pipes cannot seek.
func (r *ReadHalf) SetPosition(int64) error {
	return ErrNotSupported
}

// Seek always fails: pipes cannot seek.
func (r *ReadHalf) Seek(int64, int) (int64, error) {
	return 0, ErrNotSupported
}

// SetLength always fails: a pipe's length is governed by appends and
// drains.
func (r *ReadHalf) SetLength(int64) error {
	return ErrNotSupported
}

// Write always fails: this half is read-only.
func (r *ReadHalf) Write([]byte) (int, error) {
	return 0, ErrNotSupported
}

// WriteByte always fails: this half is read-only.
func (r *ReadHalf) WriteByte(byte) error {
	return ErrNotSupported
}

// SetReadTimeout bounds how long reads through this half may block.
func (r *ReadHalf) SetReadTimeout(d time.Duration) error {
	r.pipe.SetReadTimeout(d)
	return nil
}

// SetWriteTimeout always fails: this half is read-only.
func (r *ReadHalf) SetWriteTimeout(time.Duration) error {
	return ErrNotSupported
}

// CanRead reports whether reads can still yield bytes: the half is
// open, and either data is buffered or the write end is open.
func (r *ReadHalf) CanRead() bool {
	return !r.closed.Load() && r.pipe.readable()
}

// CanWrite always reports false.
func (r *ReadHalf) CanWrite() bool { return false }

// CanSeek always reports false.
func (r *ReadHalf) CanSeek() bool { return false }

// CanTimeout always reports true.
func (r *ReadHalf) CanTimeout() bool { return true }

// Pipe returns the owning pipe, or nil when PipeInvisible is set in
// the output-direction flags.
func (r *ReadHalf) Pipe() *Pipe {
	if r.pipe.OutFlags()&PipeInvisible != 0 {
		return nil
	}
	return r.pipe
}
