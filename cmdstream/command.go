package cmdstream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sshkit/go-bytepipe/bytepipe"
)

// stdinDrainSize bounds how many buffered stdin bytes are forwarded to
// the channel per send.
const stdinDrainSize = 5_000_000

// Command owns the three byte pipes of one remote command and keeps
// them wired to the channel: received data flows into the stdout pipe,
// extended data into the stderr pipe, and a worker started by Start
// drains the stdin pipe into the channel.
type Command struct {
	id   uuid.UUID
	name string
	ch   Channel

	stdout *bytepipe.Pipe
	stderr *bytepipe.Pipe
	stdin  *bytepipe.Pipe

	// Atomically written and read value, nonzero if the command has
	// been started. This is only used for lifecycle sanity checks but
	// does not guarantee that clients are using the type correctly.
	started uint32

	wg errgroup.Group

	eventHandler func(e *Event)
}

var emptyEventHandler = func(e *Event) {}

// CommandOption configures a Command during construction.
type CommandOption func(*Command)

// WithEventHandler sets a handler for the command. Setting one will
// emit an event whenever streaming fails or the channel closes.
func WithEventHandler(handler func(e *Event)) CommandOption {
	return func(c *Command) {
		c.eventHandler = handler
	}
}

// New returns a command streaming over ch. The stdout and stderr pipes
// alias the channel's buffers on append and stay hidden behind their
// halves; the stdin pipe blocks each application write until the
// worker has drained it from the pipe.
func New(name string, ch Channel, options ...CommandOption) *Command {
	c := &Command{
		id:   uuid.New(),
		name: name,
		ch:   ch,
		stdout: bytepipe.New(bytepipe.WithFlags(
			bytepipe.NoCopy|bytepipe.PipeInvisible, bytepipe.PipeInvisible)),
		stderr: bytepipe.New(bytepipe.WithFlags(
			bytepipe.NoCopy|bytepipe.PipeInvisible, bytepipe.PipeInvisible)),
		stdin: bytepipe.New(bytepipe.WithFlags(
			bytepipe.PipeInvisible|bytepipe.Sync, bytepipe.Default)),
		eventHandler: emptyEventHandler,
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// ID returns the unique identifier of the command.
func (c *Command) ID() uuid.UUID {
	return c.id
}

// Name returns the name of the command.
func (c *Command) Name() string {
	return c.name
}

// Stdout returns the half the application reads command output from.
func (c *Command) Stdout() *bytepipe.ReadHalf {
	return c.stdout.Out()
}

// Stderr returns the half the application reads command errors from.
func (c *Command) Stderr() *bytepipe.ReadHalf {
	return c.stderr.Out()
}

// Stdin returns the half the application writes command input to.
// Closing it makes the worker send EOF to the channel once the
// remaining input drains.
func (c *Command) Stdin() *bytepipe.WriteHalf {
	return c.stdin.In()
}

// DataReceived buffers bytes the channel received from the remote
// command's output stream. The pipe aliases p, so the channel must
// hand over ownership of the buffer.
func (c *Command) DataReceived(p []byte) error {
	_, err := c.stdout.In().Write(p)
	return err
}

// ExtendedDataReceived buffers bytes the channel received from the
// remote command's error stream. The pipe aliases p.
func (c *Command) ExtendedDataReceived(p []byte) error {
	_, err := c.stderr.In().Write(p)
	return err
}

func (c *Command) hasStarted() bool {
	return atomic.LoadUint32(&c.started) != 0
}

// Start spawns the worker that forwards stdin to the channel. If
// Start returns, Wait must also be called to collect the worker.
func (c *Command) Start(ctx context.Context) {
	if c.hasStarted() {
		panic("attempt to start a command that has already started")
	}
	atomic.StoreUint32(&c.started, 1)

	c.wg.Go(func() error {
		return c.forwardStdin(ctx)
	})
}

// forwardStdin drains the stdin pipe and sends each chunk through the
// channel, then signals EOF once the application closes its half.
func (c *Command) forwardStdin(ctx context.Context) error {
	for {
		buf, err := c.stdin.Out().DrainAvailable(stdinDrainSize)
		if errors.Is(err, io.EOF) {
			if err := c.ch.SendEOF(ctx); err != nil {
				c.eventHandler(&Event{
					Command: c.name,
					Msg:     "failed to send eof",
					Err:     err,
				})
				return err
			}
			return nil
		}
		if errors.Is(err, bytepipe.ErrDisposed) || errors.Is(err, bytepipe.ErrOutputClosed) {
			// The channel closed underneath us; nothing left to forward.
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.ch.SendData(ctx, buf); err != nil {
			c.eventHandler(&Event{
				Command: c.name,
				Msg:     "failed to forward stdin",
				Err:     err,
				Context: map[string]interface{}{
					"bytes": len(buf),
				},
			})
			return err
		}
	}
}

// Wait waits for the stdin worker to finish and returns its error.
func (c *Command) Wait() error {
	if !c.hasStarted() {
		panic("unable to wait on a command that has not started")
	}
	return c.wg.Wait()
}

// ChannelClosed tears the wiring down after the channel has closed:
// the stdout and stderr input ends close so readers drain to EOF, and
// the stdin pipe is disposed so the worker stops without sending
// further data.
func (c *Command) ChannelClosed() {
	_ = c.stdout.In().Close()
	_ = c.stderr.In().Close()
	_ = c.stdin.Close()
	c.eventHandler(&Event{
		Command: c.name,
		Msg:     "channel closed",
	})
}
