package clientip

import (
	"net"
	"net/netip"
	"strings"

	"github.com/valyala/fasthttp"
)

// Extract returns the client address from the first configured header that
// holds a parseable IP. List-valued headers such as X-Forwarded-For use
// their first element. Without a usable header the TCP peer is returned.
func Extract(ctx *fasthttp.RequestCtx, headers []string) string {
	for _, name := range headers {
		value := string(ctx.Request.Header.Peek(name))
		if first, _, _ := strings.Cut(value, ","); first != "" {
			if ip, ok := parse(strings.TrimSpace(first)); ok {
				return ip
			}
		}
	}
	return fromRemoteAddr(ctx.RemoteAddr())
}

func fromRemoteAddr(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	raw := addr.String()
	if host, _, err := net.SplitHostPort(raw); err == nil {
		raw = host
	}
	if ip, ok := parse(raw); ok {
		return ip
	}
	return raw
}

// parse accepts bare, bracketed and zoned addresses and returns the
// canonical form without the zone.
func parse(raw string) (string, bool) {
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", false
	}
	return addr.WithZone("").Unmap().String(), true
}
