package stranger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxBodySize caps how much of a response body is read (1MB).
const maxBodySize = 1 << 20

// Transport issues requests against the remote service. Relative paths are
// resolved against the base URL and every request carries the session's
// client identity.
type Transport struct {
	client *http.Client
}

func NewTransport(client *http.Client) *Transport {
	if client == nil {
		client = &http.Client{}
	}
	return &Transport{client: client}
}

// Request describes one call. A non-nil Form turns it into a form-encoded
// POST; otherwise it is a GET.
type Request struct {
	Base      string
	Path      string
	Form      url.Values
	Header    http.Header
	UserAgent string
}

func (r Request) url() string {
	if strings.HasPrefix(r.Path, "http://") || strings.HasPrefix(r.Path, "https://") {
		return r.Path
	}
	return r.Base + r.Path
}

// Fetch performs the request and returns the body of a 2xx response. All
// failures are reported as *TransportError.
func (t *Transport) Fetch(ctx context.Context, r Request) ([]byte, error) {
	target := r.url()

	method := http.MethodGet
	var body io.Reader
	var encoded string
	if r.Form != nil {
		method = http.MethodPost
		encoded = r.Form.Encode()
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}

	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Content-Length", strconv.Itoa(len(encoded)))
		req.ContentLength = int64(len(encoded))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return nil, &TransportError{Method: method, URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return data, nil
}
