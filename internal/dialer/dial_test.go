package dialer

import (
	"context"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestReadTunnelResponse(t *testing.T) {
	for _, tt := range []struct {
		name    string
		reply   []string
		wantErr string
	}{
		{"established", []string{"HTTP/1.1 200 Connection established\r\n\r\n"}, ""},
		{"split reply", []string{"HTTP/1.1 200 Connection ", "established\r\n", "\r\n"}, ""},
		{"refused", []string{"HTTP/1.1 403 Forbidden\r\n\r\n"}, "proxy refused tunnel"},
		{"garbage", []string{"ICY 200 OK\r\n\r\n"}, "malformed proxy response"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()
			go func() {
				defer server.Close()
				for _, part := range tt.reply {
					server.Write([]byte(part))
					time.Sleep(time.Millisecond)
				}
			}()

			err := readTunnelResponse(client)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("err = %v", err)
				}
			} else if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestStripH2(t *testing.T) {
	got := stripH2([]string{"h2", "http/1.1", "H2"})
	if !reflect.DeepEqual(got, []string{"http/1.1"}) {
		t.Errorf("stripH2 = %v", got)
	}
	if stripH2(nil) != nil {
		t.Error("nil stays nil")
	}
}

func TestProxyHostname(t *testing.T) {
	if got := proxyHostname("proxy.example:8080"); got != "proxy.example" {
		t.Errorf("got %q", got)
	}
	if got := proxyHostname("proxy.example"); got != "proxy.example" {
		t.Errorf("got %q", got)
	}
}

func TestDialTCPStaticHosts(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if conn, err := ln.Accept(); err == nil {
			conn.Close()
		}
	}()

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	d := NewCoreDialer()
	d.ResolveConfig = &ResolveConfig{
		StaticHosts: map[string]string{"fake.internal": "127.0.0.1"},
	}
	conn, err := d.dialTCP(context.Background(), net.JoinHostPort("fake.internal", port))
	if err != nil {
		t.Fatalf("static host mapping not applied: %v", err)
	}
	conn.Close()
}
