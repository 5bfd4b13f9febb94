package replay

import (
	"bytes"
	"io"
	"net/http"
)

// Recorder is an http.RoundTripper that forwards requests to a real
// transport and persists each request/response pair to the store.
type Recorder struct {
	store     *Store
	transport http.RoundTripper
}

// NewRecorder wraps transport. A nil transport uses http.DefaultTransport.
func NewRecorder(store *Store, transport http.RoundTripper) *Recorder {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Recorder{store: store, transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (r *Recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBody, err := drainBody(&req.Body)
	if err != nil {
		return nil, err
	}

	resp, err := r.transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	respBody, err := drainBody(&resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	rec := &HTTPRecord{
		Method:     req.Method,
		URL:        urlWithoutQuery(req),
		Query:      req.URL.RawQuery,
		ReqBody:    reqBody,
		StatusCode: resp.StatusCode,
		RespBody:   respBody,
	}
	if err := r.store.Save(rec); err != nil {
		return nil, err
	}

	return resp, nil
}

// drainBody reads a body fully and replaces it with a fresh reader so
// the request or response stays usable. A nil body reads as empty.
func drainBody(body *io.ReadCloser) (string, error) {
	if *body == nil || *body == http.NoBody {
		return "", nil
	}
	data, err := io.ReadAll(*body)
	if err != nil {
		return "", err
	}
	(*body).Close()
	*body = io.NopCloser(bytes.NewReader(data))
	return string(data), nil
}

// urlWithoutQuery returns the request URL with the query string stripped.
// Query parameters are stored separately so lookups can ignore volatile
// ones like signatures and timestamps.
func urlWithoutQuery(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
