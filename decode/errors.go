package decode

import "errors"

// Sentinel errors returned by the primitive, channel, keyword and telegram
// decoders. Callers should use errors.Is against these rather than string
// matching.
var (
	ErrTruncated             = errors.New("decode: read past end of buffer")
	ErrInvalidStartMarker    = errors.New("decode: missing or invalid start marker")
	ErrLengthMismatch        = errors.New("decode: declared length does not match body length")
	ErrCrcMismatch           = errors.New("decode: crc32 mismatch")
	ErrMissingDistance       = errors.New("decode: module has no distance channel")
	ErrChannelLengthMismatch = errors.New("decode: channel count does not match byte length")
	ErrUnknownTag            = errors.New("decode: unknown keyword tag")
	ErrMissingField          = errors.New("decode: expected field missing")
	ErrTypeMismatch          = errors.New("decode: unexpected node type")
)
