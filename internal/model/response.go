package model

import (
	"net/http"
	"strings"
)

// Response is the parsed view of one hop's status line and headers. It is
// what History carries across redirects and what auth hooks inspect for
// prior challenges.
type Response struct {
	URL        string
	Proto      string
	Status     string // e.g. "200 OK"
	StatusCode int
	Header     http.Header
}

// KeepAlive reports whether the response allows the connection to be
// returned to the pool. Reuse is deliberately conservative: only an explicit
// "keep-alive" token qualifies, anything else retires the connection.
func (r *Response) KeepAlive() bool {
	if r == nil || r.Header == nil {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "keep-alive") {
				return true
			}
		}
	}
	return false
}

// Cookies parses the Set-Cookie headers of this hop.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}
