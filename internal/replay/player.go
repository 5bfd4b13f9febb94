package replay

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// Player is an http.RoundTripper that serves recorded responses.
// Requests are matched by method, URL (query stripped) and request body.
// Unmatched requests fail with ErrNoRecording.
type Player struct {
	store   *Store
	patches []bodyPatch
}

type bodyPatch struct {
	old string
	new string
}

// NewPlayer creates a Player over the given store.
func NewPlayer(store *Store) *Player {
	return &Player{store: store}
}

// PatchResponse registers a substring replacement applied to every replayed
// response body. Used to rewrite dynamic fields such as timestamps or
// listen keys that recorded fixtures would otherwise serve stale.
func (p *Player) PatchResponse(old, new string) {
	p.patches = append(p.patches, bodyPatch{old: old, new: new})
}

// RoundTrip implements http.RoundTripper.
func (p *Player) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBody, err := drainBody(&req.Body)
	if err != nil {
		return nil, err
	}

	rec, err := p.store.Find(req.Method, urlWithoutQuery(req), reqBody)
	if err != nil {
		return nil, err
	}

	body := rec.RespBody
	for _, patch := range p.patches {
		body = strings.ReplaceAll(body, patch.old, patch.new)
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	return &http.Response{
		StatusCode:    rec.StatusCode,
		Status:        http.StatusText(rec.StatusCode),
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
