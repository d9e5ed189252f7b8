package model

import (
	"net/http"
	"time"
)

// Request describes one logical HTTP exchange. It carries everything needed
// to render the wire bytes and to derive follow-up hops: redirects append to
// History and re-enter the client with a copy of these fields.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// Unredirected headers are sent with this hop only and are never
	// carried onto a redirect target (e.g. Authorization injected by a
	// hook for a specific origin).
	Unredirected http.Header

	// Data is the body source. Accepted shapes: nil, []byte, string,
	// url.Values, map[string]string and map[string][]string. How it is
	// encoded depends on Method and Content-Type, see encodeBody.
	Data  interface{}
	Files []FormFile

	// Cookies are sent with this request in addition to whatever the
	// client's jar holds for the target.
	Cookies map[string]string

	Charset           string // charset for string bodies, defaults to utf-8
	EncodeMultipart   bool
	MultipartBoundary string

	AllowRedirects bool
	MaxRedirects   int
	WaitContinue   bool
	Decompress     bool
	Stream         bool
	Timeout        time.Duration

	// History holds the responses of prior redirect hops, oldest first.
	// Its length strictly bounds the redirect count.
	History []*Response
}

// FormFile is a single multipart file part.
type FormFile struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Redirected derives the request for the next redirect hop. The caller is
// responsible for appending the current hop's response to History.
// A 303 always downgrades to a bodyless GET regardless of the original
// method (RFC 7231 section 6.4.4); other redirect codes keep method and body.
func (r *Request) Redirected(status int, location string) *Request {
	nr := *r
	nr.URL = location
	nr.Header = r.Header.Clone()
	nr.Unredirected = nil
	nr.History = append([]*Response(nil), r.History...)
	if status == http.StatusSeeOther {
		nr.Method = http.MethodGet
		nr.Data = nil
		nr.Files = nil
	}
	return &nr
}
