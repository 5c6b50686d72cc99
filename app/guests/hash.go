package guests

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Hasher derives the salted dedup keys for guest identities. Plaintext values are
// never compared for matching; only these hashes are.
type Hasher struct {
	salt []byte
}

func NewHasher(salt string) *Hasher {
	return &Hasher{salt: []byte(salt)}
}

// normalize applies NFKC and case folding. A Caser is stateful, so one is made per call.
func normalize(s string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(s)))
}

// Email hashes an address after Unicode normalisation and case folding. Empty input gives "".
func (h *Hasher) Email(email string) string {
	n := normalize(email)
	if n == "" {
		return ""
	}
	return h.sum("email:" + n)
}

// LinkedIn hashes a profile URL reduced to host and path, so scheme, www,
// query string and trailing slash do not produce distinct keys.
func (h *Hasher) LinkedIn(profileURL string) string {
	n := normalizeProfileURL(profileURL)
	if n == "" {
		return ""
	}
	return h.sum("linkedin:" + n)
}

func (h *Hasher) sum(v string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(v))
	return hex.EncodeToString(mac.Sum(nil))
}

func normalizeProfileURL(raw string) string {
	s := normalize(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	host := strings.TrimPrefix(u.Host, "www.")
	path := strings.TrimRight(u.Path, "/")
	return host + path
}
