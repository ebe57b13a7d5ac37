// Package clients talks to the optional remote analysis services: a text
// emotion classifier, a speech transcriber and a face analyzer.
package clients

import (
	"io"
	"net/http"
	"time"
)

type HTTP struct{ c *http.Client }

func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{c: &http.Client{Timeout: timeout}}
}

// maxErrBody bounds how much of an error response is read.
const maxErrBody = 64 << 10

func errBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrBody))
	return string(b)
}
