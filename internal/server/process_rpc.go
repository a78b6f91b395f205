package server

import (
	"errors"
	"net/http"
	"time"

	"tally.dev/internal/log"
	"tally.dev/internal/process"
)

var errSnapshotTimedOut = errors.New("timed out waiting for the process snapshot")

type snapshotResult struct {
	entries []process.Entry
	err     error
}

// snapshotWithin waits at most `timeout` for a snapshot. The enumeration can't
// be interrupted, so a late one finishes in the background and is thrown away.
func snapshotWithin(reporter *process.Reporter, timeout time.Duration) ([]process.Entry, error) {
	done := make(chan snapshotResult, 1)
	go func() {
		entries, err := reporter.List()
		done <- snapshotResult{entries: entries, err: err}
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case result := <-done:
		return result.entries, result.err
	case <-deadline.C:
		return nil, errSnapshotTimedOut
	}
}

var GetProcesses = RpcMethod[struct{}, []process.Entry]{
	Name:             "get_processes",
	SkipInputParsing: true,
	Run: func(req RpcRequest[struct{}]) ([]process.Entry, *HttpError) {
		timeout := req.Server.Config.SnapshotTimeout()

		entries, err := snapshotWithin(req.Server.processes, timeout)
		switch {
		case errors.Is(err, errSnapshotTimedOut):
			logger.Warn("Process snapshot took too long", log.Ctx{
				"timeout": timeout.String(),
			})
			return nil, Errorf(http.StatusGatewayTimeout, "%s", err)

		case errors.Is(err, process.ErrQueryFailed):
			return nil, &HttpError{
				StatusCode: http.StatusInternalServerError,
				Message:    err.Error(),
				Kind:       "QueryFailed",
			}

		case err != nil:
			return nil, Errorf(http.StatusInternalServerError, "%s", err)
		}

		return entries, nil
	},
}
