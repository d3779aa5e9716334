// Package domainx derives the blockable domain of a URL.
package domainx

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyDomain   = errors.New("domain is empty")
	ErrInvalidDomain = errors.New("domain contains whitespace or '#'")
)

// Extract returns the hostname of raw, lowercased and with one leading
// "www." removed. Port, userinfo and IPv6 brackets are dropped. Non-ASCII
// hostnames are converted to their punycode form when possible.
//
// Extract never fails: when raw does not parse or has no host (for example
// "example.com" without a scheme), raw is returned unchanged.
func Extract(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := u.Hostname()
	if host == "" {
		return raw
	}

	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")

	return toASCII(host)
}

// Normalize prepares a user-supplied domain for the hosts file: it trims
// surrounding whitespace, lowercases and drops a trailing dot. Values that
// would break the entry line format are rejected.
func Normalize(domain string) (string, error) {
	d := strings.TrimSpace(domain)
	d = strings.ToLower(d)
	d = strings.TrimSuffix(d, ".")

	if d == "" {
		return "", ErrEmptyDomain
	}
	if strings.ContainsRune(d, '#') || strings.IndexFunc(d, unicode.IsSpace) != -1 {
		return "", ErrInvalidDomain
	}

	return toASCII(d), nil
}

// toASCII converts an internationalized hostname to punycode. IP literals,
// ASCII names and names idna rejects are returned as given.
func toASCII(host string) string {
	if net.ParseIP(host) != nil || isASCII(host) {
		return host
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		return host
	}
	return strings.ToLower(ascii)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
