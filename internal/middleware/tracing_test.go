package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WebSocket upgrades hijack the connection, so the traced writer must
// keep http.Hijacker reachable end to end over a real server.
func TestTracingMiddlewarePreservesHijacker(t *testing.T) {
	var sawHijacker bool
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHijacker = w.(http.Hijacker)
		w.WriteHeader(http.StatusNoContent)
	}))

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, sawHijacker, "traced writer must still implement http.Hijacker")
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	err error
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, h.err
}

func TestHijackDelegatesToUnderlyingWriter(t *testing.T) {
	sentinel := errors.New("hijacked")
	w := &responseWriterWrapper{
		ResponseWriter: &hijackableRecorder{httptest.NewRecorder(), sentinel},
		statusCode:     http.StatusOK,
	}

	_, _, err := w.Hijack()
	assert.ErrorIs(t, err, sentinel)
}

func TestHijackWithoutUnderlyingSupport(t *testing.T) {
	w := &responseWriterWrapper{
		ResponseWriter: httptest.NewRecorder(),
		statusCode:     http.StatusOK,
	}

	_, _, err := w.Hijack()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http.Hijacker")
}
