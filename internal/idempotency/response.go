package idempotency

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/sungwon/newsletter-dispatch/internal/storage"
)

// Recorder is an http.ResponseWriter that buffers a response so it can be
// saved under a key before anything reaches the client.
type Recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{header: make(http.Header)}
}

func (r *Recorder) Header() http.Header { return r.header }

func (r *Recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *Recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

// Response converts the buffered response into its saved form. Headers are
// ordered by name, values keep their original order.
func (r *Recorder) Response() *storage.SavedResponse {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	names := make([]string, 0, len(r.header))
	for name := range r.header {
		names = append(names, name)
	}
	sort.Strings(names)

	var headers []storage.HeaderPair
	for _, name := range names {
		for _, v := range r.header[name] {
			headers = append(headers, storage.HeaderPair{Name: name, Value: []byte(v)})
		}
	}

	return &storage.SavedResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       bytes.Clone(r.body.Bytes()),
	}
}

// Replay writes a saved response to w exactly as it was recorded.
func Replay(w http.ResponseWriter, resp *storage.SavedResponse) error {
	for _, h := range resp.Headers {
		w.Header().Add(h.Name, string(h.Value))
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		return fmt.Errorf("replay response body: %w", err)
	}
	return nil
}
