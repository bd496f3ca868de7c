package window

import "errors"

var (
	// ErrOutOfRange indicates a row span that the buffer does not cover. It
	// means the caller's cursor arithmetic is wrong and is never retried.
	ErrOutOfRange = errors.New("window: row span out of buffer range")
	// ErrSchemaMismatch indicates a chunk whose columns differ from the
	// columns already held by the buffer.
	ErrSchemaMismatch = errors.New("window: chunk columns do not match buffer")
)
