package bytepipe

// Flags adjust the behavior of one direction of a Pipe. The input
// (producer) and output (consumer) directions carry independent flag
// sets.
type Flags uint8

const (
	// Default is the plain behavior: appends copy, writers return as
	// soon as their bytes are buffered, and the owning Pipe is visible
	// through the halves.
	Default Flags = 0

	// NoCopy makes appends alias the caller's buffer instead of
	// duplicating it. The caller must treat the buffer as immutable
	// until the pipe has drained those bytes.
	NoCopy Flags = 0x01

	// Sync makes every append block until the buffer has drained to
	// empty.
	Sync Flags = 0x02

	// PipeInvisible hides the owning Pipe: the corresponding half's
	// Pipe accessor returns nil. Once set, the bit survives later flag
	// assignments.
	PipeInvisible Flags = 0x80
)

// SelectMode selects which condition ReadHalf.Poll waits for. Only
// SelectRead is supported by a pipe.
type SelectMode int

const (
	// SelectRead waits for data to become available.
	SelectRead SelectMode = iota + 1

	// SelectWrite waits for writability. Not supported by pipes.
	SelectWrite

	// SelectError waits for an error condition. Not supported by pipes.
	SelectError
)
