package journal

import "errors"

// ErrLoggerClosed is returned by Log after Close.
var ErrLoggerClosed = errors.New("outcome logger closed")
