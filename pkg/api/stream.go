package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
)

const (
	streamBuffer    = 256
	streamKeepAlive = 25 * time.Second
)

// StreamEvents sends the session's item events as server-sent events until
// the client disconnects. A client too slow to keep up loses events rather
// than stalling the session; it is told with a "lagged" event.
func (s *Server) StreamEvents(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	events := make(chan live.Event, streamBuffer)
	lagged := make(chan struct{}, 1)
	unsubscribe := sess.Subscribe(live.ListenerFunc(func(ev live.Event) {
		select {
		case events <- ev:
		default:
			select {
			case lagged <- struct{}{}:
			default:
			}
		}
	}))
	defer unsubscribe()

	// The server's write timeout applies to ordinary requests only.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	c.SSEvent("ping", "ready")
	flusher.Flush()

	ctx := c.Request.Context()
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-events:
			c.SSEvent(string(ev.Type), ev)
		case <-lagged:
			s.logger.WithContext(ctx).Warn("event stream lagging, events dropped",
				logging.F("session_id", sess.ID()))
			c.SSEvent("lagged", gin.H{"session_id": sess.ID()})
		case t := <-keepAlive.C:
			c.SSEvent("ping", t.UTC().Format(time.RFC3339Nano))
		}
		flusher.Flush()
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}
