package health

import (
	"context"
	"net/http"
	"time"
)

type HttpHealthCheck struct {
	Method string
	Url    string
}

func CheckHttp(healthCheck HttpHealthCheck) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, healthCheck.Method, healthCheck.Url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	// Non-200 status codes are fine, because we still got a response from an
	// http server
	return true
}

// WaitForHttp polls the check once per interval until it passes or ctx is done.
func WaitForHttp(ctx context.Context, healthCheck HttpHealthCheck, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !CheckHttp(healthCheck) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}

	return true
}
