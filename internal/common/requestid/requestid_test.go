package requestid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestNew(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)

	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"uuid", "0b9c6f7e-4a1d-4a8e-9c3b-2f1e5d6c7b8a", "0b9c6f7e-4a1d-4a8e-9c3b-2f1e5d6c7b8a"},
		{"dotted", "web.42_a-b", "web.42_a-b"},
		{"empty", "", ""},
		{"space", "a b", ""},
		{"newline injection", "abc\r\nX-Evil: 1", ""},
		{"too long", strings.Repeat("a", MaxLength+1), ""},
		{"max length", strings.Repeat("a", MaxLength), strings.Repeat("a", MaxLength)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Accept(tt.id))
		})
	}
}

func TestFromRequest(t *testing.T) {
	t.Run("propagates caller id", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.Set(HeaderName, "client-123")

		id := FromRequest(ctx)
		assert.Equal(t, "client-123", id)
		assert.Equal(t, "client-123", string(ctx.Response.Header.Peek(HeaderName)))
	})

	t.Run("generates when missing", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}

		id := FromRequest(ctx)
		require.NotEmpty(t, id)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.Equal(t, id, string(ctx.Response.Header.Peek(HeaderName)))
	})

	t.Run("replaces invalid id", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.Set(HeaderName, "<script>")

		id := FromRequest(ctx)
		assert.NotEqual(t, "<script>", id)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
	})
}
