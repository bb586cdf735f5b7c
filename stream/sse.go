package stream

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SSETransport writes frames to a gin response as a text/event-stream.
type SSETransport struct {
	w    gin.ResponseWriter
	done <-chan struct{}
}

// NewSSE commits the stream headers on c. The stream ends when the request
// context is cancelled, which net/http does when the client disconnects.
func NewSSE(c *gin.Context) *SSETransport {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	return &SSETransport{w: c.Writer, done: c.Request.Context().Done()}
}

func (t *SSETransport) WriteFrame(frame []byte) error {
	if _, err := t.w.Write(frame); err != nil {
		return err
	}
	t.w.Flush()
	return nil
}

func (t *SSETransport) Closed() <-chan struct{} { return t.done }
