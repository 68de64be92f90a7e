package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

type createSessionRequest struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type segmentRequest struct {
	Speaker     string `json:"speaker"`
	Text        string `json:"text" binding:"required"`
	TimestampMs int64  `json:"timestamp_ms"`
	// Final defaults to true when omitted.
	Final *bool `json:"final"`
}

type detectRequest struct {
	Text        string `json:"text" binding:"required"`
	TimestampMs int64  `json:"timestamp_ms"`
	Speaker     string `json:"speaker"`
}

// CreateSession starts a session. The body is optional.
func (s *Server) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	sess, err := s.manager.CreateWithID(strings.TrimSpace(req.ID), strings.TrimSpace(req.Title))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess.Info())
}

// ListSessions lists running sessions, oldest first.
func (s *Server) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.manager.List()})
}

// CloseSession stops a session and discards its in-memory state.
func (s *Server) CloseSession(c *gin.Context) {
	if err := s.manager.Close(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// IngestSegment feeds one transcript segment to the session's matcher.
// Non-final segments are accepted and ignored.
func (s *Server) IngestSegment(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var req segmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Final != nil && !*req.Final {
		c.JSON(http.StatusAccepted, gin.H{"item_ids": []string{}})
		return
	}

	ids, err := sess.IngestSegment(req.Speaker, req.Text, req.TimestampMs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"item_ids": ids})
}

// SessionStatus reports queue state and item counts.
func (s *Server) SessionStatus(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sess.Info(),
		"stats":   sess.Stats(),
	})
}

// FlushSession drains the queue without waiting for the debounce.
func (s *Server) FlushSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Flush()
	c.JSON(http.StatusAccepted, sess.Stats())
}

// ResetSession clears every item.
func (s *Server) ResetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Reset()
	c.Status(http.StatusNoContent)
}

// Detect runs the matcher without a session.
func (s *Server) Detect(c *gin.Context) {
	var req detectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	found := s.matcher.Detect(req.Text, req.TimestampMs)
	out := make([]phrases.DetectedPhrase, 0, len(found))
	for _, p := range found {
		out = append(out, p.WithSpeaker(req.Speaker))
	}
	c.JSON(http.StatusOK, gin.H{"phrases": out})
}
