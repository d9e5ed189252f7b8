package model

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

func prepare(t *testing.T, r *Request) *PreparedRequest {
	t.Helper()
	pr, err := r.Prepare()
	if err != nil {
		t.Fatal(err)
	}
	return pr
}

func TestEncodeSimpleGet(t *testing.T) {
	pr := prepare(t, &Request{
		Method: "GET",
		URL:    "http://example.com/path?a=b",
		Header: http.Header{"Accept": {"*/*"}},
	})
	wire, err := pr.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := "GET /path?a=b HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	if string(wire) != want {
		t.Errorf("got %q, want %q", wire, want)
	}
}

func TestEncodeQueryFolding(t *testing.T) {
	for _, tt := range []struct {
		name string
		data interface{}
		want string
	}{
		{"map", map[string]string{"c": "d"}, "a=b&c=d"},
		{"values", url.Values{"c": {"d", "e"}}, "a=b&c=d&c=e"},
		{"string", "c=d", "a=b&c=d"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			pr := prepare(t, &Request{Method: "GET", URL: "http://example.com/?a=b", Data: tt.data})
			wire, err := pr.Encode()
			if err != nil {
				t.Fatal(err)
			}
			if got := pr.U.RawQuery; got != tt.want {
				t.Errorf("query = %q, want %q", got, tt.want)
			}
			if bytes.Contains(wire, []byte("Content-Length")) {
				t.Error("bodyless method got a content length")
			}
		})
	}
}

func TestEncodeBodyPriority(t *testing.T) {
	for _, tt := range []struct {
		name     string
		req      *Request
		wantBody string
		wantCT   string
	}{
		{
			name:     "bytes passthrough",
			req:      &Request{Method: "POST", URL: "http://h/", Data: []byte(`{"x":1}`)},
			wantBody: `{"x":1}`,
		},
		{
			name:     "string utf8",
			req:      &Request{Method: "POST", URL: "http://h/", Data: "héllo"},
			wantBody: "héllo",
		},
		{
			name:     "string latin1",
			req:      &Request{Method: "POST", URL: "http://h/", Data: "héllo", Charset: "iso-8859-1"},
			wantBody: "h\xe9llo",
		},
		{
			name:     "urlencoded form",
			req:      &Request{Method: "POST", URL: "http://h/", Data: map[string]string{"b": "2", "a": "1"}},
			wantBody: "a=1&b=2",
			wantCT:   "application/x-www-form-urlencoded",
		},
		{
			name: "explicit content type marshals json",
			req: &Request{
				Method: "POST", URL: "http://h/",
				Header: http.Header{"Content-Type": {"application/json"}},
				Data:   map[string]string{"a": "1"},
			},
			wantBody: `{"a":"1"}`,
			wantCT:   "application/json",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			pr := prepare(t, tt.req)
			if _, err := pr.Encode(); err != nil {
				t.Fatal(err)
			}
			if string(pr.Body) != tt.wantBody {
				t.Errorf("body = %q, want %q", pr.Body, tt.wantBody)
			}
			if tt.wantCT != "" && pr.Header.Get("Content-Type") != tt.wantCT {
				t.Errorf("content type = %q, want %q", pr.Header.Get("Content-Type"), tt.wantCT)
			}
		})
	}
}

func TestEncodeMultipart(t *testing.T) {
	pr := prepare(t, &Request{
		Method:            "POST",
		URL:               "http://h/upload",
		Data:              map[string]string{"field": "value"},
		EncodeMultipart:   true,
		MultipartBoundary: "deadbeef",
		Files: []FormFile{
			{Field: "doc", Name: "a.txt", ContentType: "text/plain", Data: []byte("contents")},
		},
	})
	if _, err := pr.Encode(); err != nil {
		t.Fatal(err)
	}
	ct := pr.Header.Get("Content-Type")
	if want := "multipart/form-data; boundary=deadbeef"; ct != want {
		t.Fatalf("content type = %q, want %q", ct, want)
	}
	body := string(pr.Body)
	for _, part := range []string{
		"--deadbeef\r\n",
		`name="field"`,
		"value",
		`name="doc"; filename="a.txt"`,
		"Content-Type: text/plain",
		"contents",
		"--deadbeef--",
	} {
		if !strings.Contains(body, part) {
			t.Errorf("body misses %q:\n%s", part, body)
		}
	}
}

func TestEncodeUnsupportedBody(t *testing.T) {
	pr := prepare(t, &Request{Method: "POST", URL: "http://h/", Data: 42})
	if _, err := pr.Encode(); err == nil {
		t.Error("expected error for unsupported body type")
	}
}

func TestEncodeWaitContinue(t *testing.T) {
	pr := prepare(t, &Request{
		Method: "POST", URL: "http://h/",
		Data:         []byte("payload"),
		WaitContinue: true,
	})
	wire, err := pr.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(wire, []byte("Expect: 100-continue\r\n")) {
		t.Error("missing Expect header")
	}
	if bytes.Contains(wire, []byte("payload")) {
		t.Error("payload was not withheld")
	}
	if string(pr.Body) != "payload" {
		t.Errorf("withheld body = %q", pr.Body)
	}
	if !bytes.Contains(wire, []byte("Content-Length: 7\r\n")) {
		t.Error("content length should describe the withheld payload")
	}
}

func TestEncodeUnredirectedPrecedence(t *testing.T) {
	pr := prepare(t, &Request{
		Method:       "GET",
		URL:          "http://h/",
		Header:       http.Header{"X-Token": {"main"}},
		Unredirected: http.Header{"X-Token": {"hop"}, "X-Hop": {"only"}},
	})
	wire, err := pr.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(wire, []byte("X-Token: main\r\n")) {
		t.Error("main header should win over unredirected")
	}
	if !bytes.Contains(wire, []byte("X-Hop: only\r\n")) {
		t.Error("unredirected-only header should be sent")
	}
}

func TestEncodeRejectsBadHeader(t *testing.T) {
	pr := prepare(t, &Request{
		Method: "GET", URL: "http://h/",
		Header: http.Header{"X-Bad": {"v\r\nInjected: x"}},
	})
	if _, err := pr.Encode(); err == nil {
		t.Error("expected header validation error")
	}
}
