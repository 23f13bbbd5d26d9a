package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxFragmentSize caps how much of a fragment body is read.
const maxFragmentSize = 8 << 20

// ErrTransport matches any *TransportError via errors.Is.
var ErrTransport = errors.New("fetch: transport error")

// TransportError wraps a non-200 response or a network failure.
type TransportError struct {
	URL        string
	StatusCode int    // Zero for network failures.
	Status     string // e.g. "503 Service Unavailable".
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %s", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransport) match.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Fetcher retrieves module HTML fragments. Each call is exactly one
// request; Fetcher never retries.
type Fetcher struct {
	session *Session
}

// NewFetcher creates a Fetcher that sends requests through session.
func NewFetcher(session *Session) *Fetcher {
	return &Fetcher{session: session}
}

// Fetch GETs the fragment at ref (absolute, or relative to the panel base URL).
// Only a 200 response counts as success.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (string, error) {
	target, err := f.session.Resolve(ref)
	if err != nil {
		return "", &TransportError{URL: ref, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &TransportError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := f.session.Client().Do(req)
	if err != nil {
		return "", &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxFragmentSize))
		return "", &TransportError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentSize))
	if err != nil {
		return "", &TransportError{URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}
	return string(body), nil
}
