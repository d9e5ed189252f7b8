package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
	"golang.org/x/text/encoding/htmlindex"
)

// Methods whose Data is folded into the query string instead of a body.
var encodeURLMethods = map[string]bool{
	http.MethodDelete: true, http.MethodGet: true,
	http.MethodHead: true, http.MethodOptions: true,
}

// Encode renders the request line, merged headers and body into wire bytes.
// Unredirected headers are merged in with lower precedence than the main
// set. A body sets Content-Length; with WaitContinue the body bytes are
// withheld and Expect: 100-continue is sent instead, the consumer flushes
// r.Body once the server answers 100.
func (r *PreparedRequest) Encode() ([]byte, error) {
	body, err := r.encodeBody()
	if err != nil {
		return nil, err
	}
	r.Body = body
	if len(body) > 0 {
		r.ContentLength = int64(len(body))
		r.Header.Set("Content-Length", strconv.Itoa(len(body)))
		if r.WaitContinue {
			r.Header.Set("Expect", "100-continue")
			body = nil
		}
	}

	headers := r.Header
	if len(r.Unredirected) > 0 {
		headers = r.Unredirected.Clone()
		for k, v := range r.Header {
			headers[textproto.CanonicalMIMEHeaderKey(k)] = v
		}
	}

	var buf bytes.Buffer
	buf.WriteString(r.firstLine())
	buf.WriteString("\r\nHost: ")
	buf.WriteString(r.HeaderHost)
	buf.WriteString("\r\n")
	if err := writeHeaders(&buf, headers); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")
	buf.Write(body)
	return buf.Bytes(), nil
}

// writeHeaders emits headers in sorted key order so the rendering is stable.
func writeHeaders(buf *bytes.Buffer, headers http.Header) error {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !httpguts.ValidHeaderFieldName(k) {
			return fmt.Errorf("evhttp: invalid header field name %q", k)
		}
		for _, v := range headers[k] {
			if !httpguts.ValidHeaderFieldValue(v) {
				return fmt.Errorf("evhttp: invalid value for header %q", k)
			}
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	return nil
}

// encodeBody applies the body policy chain, in fixed priority order:
//  1. URL-encoding methods fold Data into the query string, no body.
//  2. Raw []byte passes through, string is charset-encoded.
//  3. Structured data without an explicit Content-Type becomes
//     multipart/form-data when multipart encoding is enabled, otherwise
//     application/x-www-form-urlencoded.
//  4. Anything else (including an explicit application/json) marshals
//     as JSON.
func (r *PreparedRequest) encodeBody() ([]byte, error) {
	if encodeURLMethods[r.Method] {
		r.Files = nil
		return nil, r.encodeQuery()
	}
	switch d := r.Data.(type) {
	case nil:
		if len(r.Files) > 0 {
			return r.encodeMultipart(nil)
		}
		return nil, nil
	case []byte:
		return d, nil
	case string:
		return encodeCharset(d, r.Charset)
	}

	if r.Header.Get("Content-Type") == "" {
		if r.EncodeMultipart || len(r.Files) > 0 {
			values, err := toValues(r.Data)
			if err != nil {
				return nil, err
			}
			return r.encodeMultipart(values)
		}
		values, err := toValues(r.Data)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return encodeCharset(values.Encode(), r.Charset)
	}
	b, err := json.Marshal(r.Data)
	if err != nil {
		return nil, fmt.Errorf("evhttp: encoding json body: %w", err)
	}
	return b, nil
}

// encodeQuery folds Data into the URL query for bodyless methods. A string
// is parsed as a query string, structured data is appended value by value.
func (r *PreparedRequest) encodeQuery() error {
	if r.Data == nil {
		return nil
	}
	query, err := url.ParseQuery(r.U.RawQuery)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	var extra url.Values
	if s, ok := r.Data.(string); ok {
		if extra, err = url.ParseQuery(s); err != nil {
			return fmt.Errorf("evhttp: query data: %w", err)
		}
	} else if extra, err = toValues(r.Data); err != nil {
		return err
	}
	for _, k := range sortedKeys(extra) {
		for _, v := range extra[k] {
			query.Add(k, v)
		}
	}
	r.U.RawQuery = query.Encode()
	r.Data = nil
	return nil
}

func (r *PreparedRequest) encodeMultipart(values url.Values) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	boundary := r.MultipartBoundary
	if boundary == "" {
		boundary = uuid.NewString()
	}
	if err := w.SetBoundary(boundary); err != nil {
		return nil, fmt.Errorf("evhttp: multipart boundary: %w", err)
	}
	for _, k := range sortedKeys(values) {
		for _, v := range values[k] {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
	}
	for _, f := range r.Files {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Name))
		if f.ContentType != "" {
			h.Set("Content-Type", f.ContentType)
		}
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", w.FormDataContentType())
	return buf.Bytes(), nil
}

func toValues(data interface{}) (url.Values, error) {
	switch d := data.(type) {
	case url.Values:
		return d, nil
	case map[string][]string:
		return url.Values(d), nil
	case map[string]string:
		values := url.Values{}
		for k, v := range d {
			values.Set(k, v)
		}
		return values, nil
	default:
		return nil, fmt.Errorf("evhttp: unsupported body type: %T", data)
	}
}

func sortedKeys(values url.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// encodeCharset transcodes s from UTF-8 to the requested charset. The utf-8
// fast path keeps the bytes as-is.
func encodeCharset(s, charset string) ([]byte, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return []byte(s), nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("evhttp: unknown charset %q: %w", charset, err)
	}
	return enc.NewEncoder().Bytes([]byte(s))
}
