package internal

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/evwire/evhttp/internal/model"
)

// AddBasicAuth installs a hook that sends the credentials on every hop.
func (c *Client) AddBasicAuth(username, password string) {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	c.hooks = append(c.hooks, func(_ context.Context, r *model.PreparedRequest) error {
		r.Header.Set("Authorization", "Basic "+token)
		return nil
	})
}

// AddDigestAuth installs a hook answering digest challenges (RFC 2617,
// MD5 with qop=auth). The challenge is read from the most recent 401 in
// the request's history, so the caller resubmits with History carried over.
func (c *Client) AddDigestAuth(username, password string) {
	c.hooks = append(c.hooks, func(_ context.Context, r *model.PreparedRequest) error {
		challenge := lastDigestChallenge(r.History)
		if challenge == nil {
			return nil
		}
		header, err := answerDigest(challenge, username, password, r.Method, r.U.RequestURI())
		if err != nil {
			return err
		}
		r.Header.Set("Authorization", header)
		return nil
	})
}

func lastDigestChallenge(history []*model.Response) map[string]string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].StatusCode != http.StatusUnauthorized {
			continue
		}
		for _, v := range history[i].Header.Values("Www-Authenticate") {
			if strings.HasPrefix(strings.ToLower(v), "digest ") {
				return parseChallenge(v[len("digest "):])
			}
		}
	}
	return nil
}

// parseChallenge splits the comma separated k="v" pairs of a challenge.
// Commas inside quoted values are respected.
func parseChallenge(s string) map[string]string {
	out := map[string]string{}
	for len(s) > 0 {
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]
		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				break
			}
			value = s[1 : 1+end]
			s = s[end+2:]
		} else if comma := strings.IndexByte(s, ','); comma >= 0 {
			value = strings.TrimSpace(s[:comma])
			s = s[comma:]
		} else {
			value = strings.TrimSpace(s)
			s = ""
		}
		out[key] = value
		s = strings.TrimPrefix(strings.TrimSpace(s), ",")
		s = strings.TrimSpace(s)
	}
	return out
}

func answerDigest(ch map[string]string, username, password, method, uri string) (string, error) {
	realm, nonce := ch["realm"], ch["nonce"]
	if nonce == "" {
		return "", fmt.Errorf("%w: digest challenge without nonce", ErrProtocol)
	}
	if alg := strings.ToUpper(ch["algorithm"]); alg != "" && alg != "MD5" {
		return "", fmt.Errorf("%w: unsupported digest algorithm %q", ErrProtocol, ch["algorithm"])
	}

	ha1 := md5hex(username + ":" + realm + ":" + password)
	ha2 := md5hex(method + ":" + uri)

	var sb strings.Builder
	fmt.Fprintf(&sb, `Digest username=%q, realm=%q, nonce=%q, uri=%q`, username, realm, nonce, uri)

	if qop := ch["qop"]; qop != "" {
		if !hasToken(qop, "auth") {
			return "", fmt.Errorf("%w: unsupported digest qop %q", ErrProtocol, qop)
		}
		cnonce := newCnonce()
		response := md5hex(ha1 + ":" + nonce + ":00000001:" + cnonce + ":auth:" + ha2)
		fmt.Fprintf(&sb, `, qop=auth, nc=00000001, cnonce=%q, response=%q`, cnonce, response)
	} else {
		fmt.Fprintf(&sb, `, response=%q`, md5hex(ha1+":"+nonce+":"+ha2))
	}
	if opaque := ch["opaque"]; opaque != "" {
		fmt.Fprintf(&sb, `, opaque=%q`, opaque)
	}
	return sb.String(), nil
}

func hasToken(list, token string) bool {
	for _, t := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return true
		}
	}
	return false
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

var newCnonce = func() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
