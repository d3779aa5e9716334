package requestid

import (
	"regexp"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// HeaderName carries the request ID in both directions.
const HeaderName = "X-Request-ID"

// MaxLength bounds an accepted client-supplied ID.
const MaxLength = 64

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// New returns a fresh random request ID.
func New() string {
	return uuid.New().String()
}

// Accept returns id if it is safe to echo back and log, otherwise "".
func Accept(id string) string {
	if id == "" || len(id) > MaxLength || !validID.MatchString(id) {
		return ""
	}
	return id
}

// FromRequest returns the caller's X-Request-ID when it is acceptable and a
// new ID otherwise. The chosen ID is set on the response header.
func FromRequest(ctx *fasthttp.RequestCtx) string {
	id := Accept(string(ctx.Request.Header.Peek(HeaderName)))
	if id == "" {
		id = New()
	}
	ctx.Response.Header.Set(HeaderName, id)
	return id
}
