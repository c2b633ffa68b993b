package rss

import "errors"

// ErrInvalidState marks writer or session misuse: reusing a consumed
// writer, transmitting outside an open upload session, or stopping
// successfully while data is still buffered or unwritten.
var ErrInvalidState = errors.New("invalid shuffle writer state")
