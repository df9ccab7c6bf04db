// Package identity derives a stable client identity from an untrusted HTTP
// request: a sanitized first-party cookie token and a normalized client IP
// resolved through the usual proxy header chain. Everything here is pure and
// framework-free so the rules stay unit-testable.
package identity

import (
	"net"
	"net/http"
	"strings"
)

// CookieName is the first-party visitor identity cookie.
const CookieName = "rv_user"

// Header precedence for the client address. X-Real-IP is the single trusted
// real-IP header set by our own proxy; the forwarded-for chain is
// least-trusted first.
const (
	headerRealIP       = "X-Real-IP"
	headerForwardedFor = "X-Forwarded-For"
)

// AnonIdentity is the last-resort identity when nothing usable resolves.
const AnonIdentity = "anon"

// ClientIdentity holds the candidate identities computed for one request.
// Either field may be empty when that source did not resolve.
type ClientIdentity struct {
	CookieToken string
	IPAddress   string
}

// FromRequest computes both candidate identities for a request.
func FromRequest(r *http.Request) ClientIdentity {
	return ClientIdentity{
		CookieToken: TokenFromRequest(r),
		IPAddress:   ResolveIP(r.Header, r.RemoteAddr),
	}
}

// TokenFromRequest returns the first identity cookie whose sanitized value
// is non-empty. A request can carry several copies of the cookie, e.g. a
// garbage one sent by the client plus a fresh one attached mid-request, and
// a garbage copy must not shadow a usable one.
func TokenFromRequest(r *http.Request) string {
	for _, c := range r.Cookies() {
		if c.Name != CookieName {
			continue
		}
		if token := SanitizeToken(c.Value); token != "" {
			return token
		}
	}
	return ""
}

// SanitizeToken strips every character outside [A-Za-z0-9_-] from a cookie
// token. Garbage in, shorter garbage out; never an error.
func SanitizeToken(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// ResolveIP picks the client address from proxy headers, preferring a single
// trusted real-IP header, then the first public entry of the forwarded-for
// chain, then the raw peer address. The result is normalized; it is "anon"
// only when every source is empty.
func ResolveIP(header http.Header, remoteAddr string) string {
	if v := header.Get(headerRealIP); v != "" {
		if ip := NormalizeIP(v); ip != AnonIdentity {
			return ip
		}
	}

	if chain := header.Get(headerForwardedFor); chain != "" {
		if ip := pickForwardedFor(chain); ip != "" {
			return ip
		}
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return NormalizeIP(host)
}

// pickForwardedFor walks a comma-separated forwarded-for chain and returns
// the first public address, falling back to the first address when every
// candidate is private. Empty chain returns "".
func pickForwardedFor(chain string) string {
	var first string
	for _, part := range strings.Split(chain, ",") {
		ip := NormalizeIP(part)
		if ip == AnonIdentity {
			continue
		}
		if first == "" {
			first = ip
		}
		if !IsPrivate(ip) {
			return ip
		}
	}
	return first
}

// NormalizeIP canonicalizes a raw address candidate: whitespace trimmed, an
// IPv6-mapped-IPv4 prefix unwrapped, surrounding brackets stripped, and any
// character outside [A-Za-z0-9_.:-] removed. An empty result becomes the
// literal "anon".
func NormalizeIP(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "::ffff:")
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == ':', r == '-':
			b.WriteByte(byte(r))
		}
	}

	out := b.String()
	if out == "" {
		return AnonIdentity
	}
	return out
}

// IsPrivate reports whether a normalized address is unusable as a public
// identity: loopback, link-local, RFC1918, or malformed. Private addresses
// still serve as a last-resort identity; they just lose to public candidates
// in the forwarded-for chain.
func IsPrivate(addr string) bool {
	if addr == "" || addr == AnonIdentity || addr == "localhost" {
		return true
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		// Malformed quads count as private.
		return true
	}

	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate()
}
