package process

import (
	"errors"
)

var (
	// ErrQueryFailed means the OS process table could not be read at all.
	ErrQueryFailed = errors.New("failed to query the process table")
)
