package memoryStore

import "errors"

var errVectorMismatch = errors.New("chunk and vector counts differ")
