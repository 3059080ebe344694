package broker

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// orderedParams preserves insertion order, unlike url.Values (a map) —
// required because the HMAC signature is computed over the parameters in
// the order they were added.
type orderedParams []struct{ key, value string }

func (p *orderedParams) add(key, value string) {
	*p = append(*p, struct{ key, value string }{key, value})
}

func (p *orderedParams) addInt(key string, value int64) {
	p.add(key, strconv.FormatInt(value, 10))
}

// encode renders the params as a URL query string, k=v&k=v, in insertion
// order, with each value percent-escaped.
func (p orderedParams) encode() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = e.key + "=" + url.QueryEscape(e.value)
	}
	return strings.Join(parts, "&")
}

// sign computes the HMAC-SHA256 signature over the encoded query string,
// matching the canonical Binance signing scheme.
func (p orderedParams) sign(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(p.encode()))
	return hex.EncodeToString(mac.Sum(nil))
}
