package scansegment

import "context"

// Transport is the single capability the core requires of its byte
// source: block until at least one chunk of bytes is available, returning
// the chunk and a source identifier, or an empty chunk on timeout/error.
// Datagram transports deliver exactly one telegram per chunk; stream
// transports deliver arbitrary-size chunks the framer reassembles.
//
// Socket and datagram implementations are out of scope for this module;
// Transport exists so the Receiver can be driven by a fake in tests, or by
// a real implementation living elsewhere.
type Transport interface {
	// Receive blocks until a chunk is available, the context is
	// cancelled, or the transport's own read deadline elapses. It
	// returns (nil, "") on timeout or error; callers must check
	// NoError afterwards to distinguish a clean timeout from a fault.
	Receive(ctx context.Context) (data []byte, sourceID string)

	// NoError reports whether the most recent Receive completed
	// without a transport-level fault.
	NoError() bool

	// LastErrorCode and LastErrorMessage describe the most recent
	// transport-level fault, valid only when NoError reports false.
	LastErrorCode() int
	LastErrorMessage() string
}
