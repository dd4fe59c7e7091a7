package imf

import "errors"

// Error taxonomy. These are the only errors this package returns from its
// own logic; errors from an injected demux.Opener, demux.ChildDemuxer or
// demux.ByteStreamOpener are wrapped with fmt.Errorf and satisfy errors.Is
// against ErrIO. An error returned by the injected DocumentParser, including
// one raised while it reads the byte stream, satisfies ErrInvalidData.
var (
	// ErrInvalidData covers malformed XML, a missing required element or
	// attribute, an unparseable numeric, an unresolved UUID lookup, and
	// duplicate or incompatible virtual track declarations.
	ErrInvalidData = errors.New("imf: invalid data")

	// ErrOutOfMemory is returned when a document declares an element count
	// implausible enough that honoring it would be an unbounded allocation.
	ErrOutOfMemory = errors.New("imf: out of memory")

	// ErrIO wraps a host byte-stream failure reading a CPL, an asset map,
	// or a resource container.
	ErrIO = errors.New("imf: io error")

	// ErrStreamNotFound means the scheduler could not locate a resource for
	// a non-terminal composition timestamp: the track's declared duration
	// and its resource list disagree.
	ErrStreamNotFound = errors.New("imf: stream not found")

	// ErrEOF means the composition is exhausted, or that the caller's
	// interrupt signalled cancellation mid-read.
	ErrEOF = errors.New("imf: eof")
)
