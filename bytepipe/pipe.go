// Package bytepipe provides a bounded, thread-safe byte pipe: one end
// accepts writes, the other yields reads, and the pipe enforces a
// maximum buffered size with back-pressure.
//
// A Pipe is the in-process transport between a producer and a
// consumer, such as the thread copying command output received from a
// network channel and the application thread reading it. The producer
// side is exposed as a WriteHalf and the consumer side as a ReadHalf;
// the supported pattern is one writer and one reader, though the
// primitive itself is safe under more.
package bytepipe

import (
	"fmt"
	"sync"
	"time"

	"github.com/sshkit/go-bytepipe/internal/segq"
)

// Pipe is a bounded buffer of byte segments with blocking append and
// drain operations. All state lives under one mutex with one condition
// variable; every state change broadcasts so that blocked appends,
// drains, flushes, and polls re-evaluate their conditions.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	q        segq.Queue
	capacity int

	inFlags  Flags
	outFlags Flags

	// Once true, these stay true.
	inClosed  bool
	outClosed bool
	disposed  bool

	readTimeout  time.Duration
	writeTimeout time.Duration

	// flushing blocks new appends until a pending flush observes an
	// empty buffer.
	flushing bool

	in  *WriteHalf
	out *ReadHalf
}

// New returns a pipe with all of the options applied. Without options
// the pipe buffers up to DefaultCapacity bytes, waits forever in both
// directions, and carries Default flags.
func New(options ...Option) *Pipe {
	p := &Pipe{
		capacity:     DefaultCapacity,
		readTimeout:  -1,
		writeTimeout: -1,
	}
	p.cond = sync.NewCond(&p.mu)
	for _, option := range options {
		option(p)
	}
	p.in = &WriteHalf{pipe: p}
	p.out = &ReadHalf{pipe: p}
	return p
}

// In returns the write-only half of the pipe.
func (p *Pipe) In() *WriteHalf {
	return p.in
}

// Out returns the read-only half of the pipe.
func (p *Pipe) Out() *ReadHalf {
	return p.out
}

// deadline captures the wall-clock budget of one blocking operation.
// The zero deadline means wait forever.
type deadline struct {
	timed bool
	at    time.Time
}

// newDeadline starts the clock for a wait. Negative timeouts wait
// forever; a zero timeout produces an already-expired deadline, so the
// first failed condition check times out without waiting.
func newDeadline(timeout time.Duration) deadline {
	if timeout < 0 {
		return deadline{}
	}
	return deadline{timed: true, at: time.Now().Add(timeout)}
}

func (d deadline) expired() bool {
	return d.timed && !time.Now().Before(d.at)
}

// waitLocked blocks on the condition variable until the next
// broadcast, arranging an extra wake-up at the deadline. The caller
// holds the mutex and re-checks both its condition and the deadline
// after every return.
func (p *Pipe) waitLocked(d deadline) {
	if !d.timed {
		p.cond.Wait()
		return
	}
	t := time.AfterFunc(time.Until(d.at), func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	p.cond.Wait()
	t.Stop()
}

// Append enqueues buf[off:off+n] as one segment, blocking while the
// buffered count would exceed the capacity or a flush is pending. The
// bytes are copied unless NoCopy is set in the input flags, in which
// case the segment aliases buf and the caller must not mutate it until
// it drains. With Sync set, Append additionally flushes before
// returning.
//
// Blocked appends wake with ErrDisposed if the pipe is closed,
// ErrOutputClosed if the read end closes, ErrInputClosed if the write
// end closes, or ErrTimeout when the write timeout elapses.
func (p *Pipe) Append(buf []byte, off, n int) error {
	if err := checkRange(buf, off, n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	p.mu.Lock()
	d := newDeadline(p.writeTimeout)
	for (p.q.Len()+n > p.capacity || p.flushing) && !p.outClosed && !p.disposed {
		if p.inClosed {
			p.mu.Unlock()
			return ErrInputClosed
		}
		if d.expired() {
			p.mu.Unlock()
			return ErrTimeout
		}
		p.waitLocked(d)
	}
	switch {
	case p.disposed:
		p.mu.Unlock()
		return ErrDisposed
	case p.outClosed:
		p.mu.Unlock()
		return ErrOutputClosed
	case p.inClosed:
		p.mu.Unlock()
		return ErrInputClosed
	}
	p.q.Push(segq.NewSegment(buf, off, n, p.inFlags&NoCopy == 0))
	p.cond.Broadcast()
	syncMode := p.inFlags&Sync != 0
	p.mu.Unlock()

	if syncMode {
		return p.Flush()
	}
	return nil
}

// Flush blocks until every buffered byte has been drained or the read
// end closes. While a flush is pending, appends from any writer block.
// Flush honors the write timeout.
func (p *Pipe) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return ErrDisposed
	}
	p.flushing = true
	d := newDeadline(p.writeTimeout)
	for p.q.Len() > 0 && !p.outClosed && !p.disposed {
		if d.expired() {
			p.flushing = false
			p.cond.Broadcast()
			return ErrTimeout
		}
		p.waitLocked(d)
	}
	p.flushing = false
	p.cond.Broadcast()
	if p.disposed {
		return ErrDisposed
	}
	return nil
}

// waitForDataLocked blocks until the pipe holds data, the write end
// closes, or the read timeout elapses. It returns true only when data
// is buffered and the read end is still open; false with a nil error
// means EOF.
func (p *Pipe) waitForDataLocked() (bool, error) {
	if p.outClosed || p.disposed {
		return false, p.drainClosedErr()
	}
	d := newDeadline(p.readTimeout)
	for p.q.Len() == 0 && !p.inClosed && !p.outClosed && !p.disposed {
		if d.expired() {
			return false, ErrTimeout
		}
		p.waitLocked(d)
	}
	if p.outClosed || p.disposed {
		return false, p.drainClosedErr()
	}
	if p.q.Len() > 0 {
		return true, nil
	}
	return false, nil
}

func (p *Pipe) drainClosedErr() error {
	if p.disposed {
		return ErrDisposed
	}
	return ErrOutputClosed
}

// DrainInto copies buffered bytes into dst[off:off+want], blocking
// until at least one byte is available. It returns the number of bytes
// copied, which is less than want only when the buffer emptied, and 0
// at EOF.
func (p *Pipe) DrainInto(dst []byte, off, want int) (int, error) {
	if err := checkRange(dst, off, want); err != nil {
		return 0, err
	}
	if want == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ok, err := p.waitForDataLocked()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	removed := p.q.DrainInto(dst[off : off+want])
	p.cond.Broadcast()
	return removed, nil
}

// DrainByte consumes one byte, blocking until one is available. It
// returns the byte value, or -1 at EOF.
func (p *Pipe) DrainByte() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ok, err := p.waitForDataLocked()
	if err != nil {
		return -1, err
	}
	if !ok {
		return -1, nil
	}
	b := p.q.DrainByte()
	p.cond.Broadcast()
	return int(b), nil
}

// DrainAvailable blocks until data is available, then drains up to max
// bytes into a freshly allocated buffer. It returns nil at EOF. max
// must be positive.
func (p *Pipe) DrainAvailable(max int) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("drain size %d: %w", max, ErrArgument)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ok, err := p.waitForDataLocked()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	n := p.q.Len()
	if n > max {
		n = max
	}
	buf := make([]byte, n)
	p.q.DrainInto(buf)
	p.cond.Broadcast()
	return buf, nil
}

// Poll blocks until data is available or the timeout elapses, without
// consuming anything. It returns true when data is buffered, false on
// EOF or deadline elapse. The timeout is independent of the pipe's
// read timeout.
func (p *Pipe) Poll(timeout time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.outClosed || p.disposed {
		return false, p.drainClosedErr()
	}
	d := newDeadline(timeout)
	for p.q.Len() == 0 && !p.inClosed && !p.outClosed && !p.disposed {
		if d.expired() {
			return false, nil
		}
		p.waitLocked(d)
	}
	if p.outClosed || p.disposed {
		return false, p.drainClosedErr()
	}
	return p.q.Len() > 0, nil
}

// Clear discards every buffered byte and wakes all waiters.
func (p *Pipe) Clear() {
	p.mu.Lock()
	p.q.Clear()
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Len returns the number of buffered bytes.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Len()
}

// Capacity returns the maximum number of buffered bytes.
func (p *Pipe) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// SetCapacity changes the buffered-byte limit. Any positive value is
// accepted, including one below the current count: buffered bytes are
// never dropped, and blocked writers simply keep waiting until drains
// bring the count under the new limit.
func (p *Pipe) SetCapacity(c int) error {
	if c <= 0 {
		return fmt.Errorf("capacity %d: %w", c, ErrArgument)
	}
	p.mu.Lock()
	p.capacity = c
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// InFlags returns the input-direction flags.
func (p *Pipe) InFlags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlags
}

// SetInFlags assigns the input-direction flags. A PipeInvisible bit
// that was already set is preserved.
func (p *Pipe) SetInFlags(f Flags) {
	p.mu.Lock()
	p.inFlags = f | p.inFlags&PipeInvisible
	p.cond.Broadcast()
	p.mu.Unlock()
}

// OutFlags returns the output-direction flags.
func (p *Pipe) OutFlags() Flags {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outFlags
}

// SetOutFlags assigns the output-direction flags. A PipeInvisible bit
// that was already set is preserved.
func (p *Pipe) SetOutFlags(f Flags) {
	p.mu.Lock()
	p.outFlags = f | p.outFlags&PipeInvisible
	p.cond.Broadcast()
	p.mu.Unlock()
}

// ReadTimeout returns the drain-side timeout.
func (p *Pipe) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeout
}

// SetReadTimeout bounds how long drains wait for data. Negative waits
// forever; zero fails immediately when no data is buffered.
func (p *Pipe) SetReadTimeout(d time.Duration) {
	p.mu.Lock()
	p.readTimeout = d
	p.cond.Broadcast()
	p.mu.Unlock()
}

// WriteTimeout returns the append-side timeout.
func (p *Pipe) WriteTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeTimeout
}

// SetWriteTimeout bounds how long appends wait for space and flushes
// wait for empty. Negative waits forever; zero fails immediately.
func (p *Pipe) SetWriteTimeout(d time.Duration) {
	p.mu.Lock()
	p.writeTimeout = d
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Close disposes the pipe: both ends close, buffered bytes are
// discarded, and every blocked operation wakes with ErrDisposed. Close
// is idempotent and never fails.
func (p *Pipe) Close() error {
	p.mu.Lock()
	p.disposed = true
	p.inClosed = true
	p.outClosed = true
	p.q.Clear()
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// closeIn marks the input end closed. Buffered bytes remain readable;
// once they drain, reads report EOF.
func (p *Pipe) closeIn() {
	p.mu.Lock()
	p.inClosed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// closeOut marks the output end closed and discards buffered bytes.
// Blocked writers wake with ErrOutputClosed.
func (p *Pipe) closeOut() {
	p.mu.Lock()
	p.outClosed = true
	p.q.Clear()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Pipe) outEndClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outClosed
}

// readable reports whether a read could still yield bytes: data is
// buffered, or the input end is open.
func (p *Pipe) readable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Len() > 0 || !p.inClosed
}
