package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// ListItems lists items in detection order. Query parameters: all=true
// includes dismissed items, category and status filter.
func (s *Server) ListItems(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	filter, err := parseItemFilter(c)
	if err != nil {
		s.writeError(c, err)
		return
	}
	items := sess.Items(filter)
	if items == nil {
		items = []live.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func parseItemFilter(c *gin.Context) (live.ItemFilter, error) {
	var f live.ItemFilter
	if v := c.Query("all"); v != "" {
		all, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: all must be a boolean", plerrors.ErrValidation)
		}
		f.IncludeDismissed = all
	}
	if v := c.Query("category"); v != "" {
		cat, err := phrases.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = cat
	}
	if v := c.Query("status"); v != "" {
		st, err := live.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	return f, nil
}

// GroupedItems returns non-dismissed items grouped by category.
func (s *Server) GroupedItems(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	groups := sess.Grouped()
	if groups == nil {
		groups = []live.Group{}
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetItem returns one item.
func (s *Server) GetItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	it, found := sess.Get(c.Param("itemID"))
	if !found {
		s.writeError(c, fmt.Errorf("%w: item %s", plerrors.ErrNotFound, c.Param("itemID")))
		return
	}
	c.JSON(http.StatusOK, it)
}

// UpdateItem applies a user edit.
func (s *Server) UpdateItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}

	var patch live.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	it, err := sess.Update(c.Param("itemID"), patch)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

// RemoveItem deletes an item.
func (s *Server) RemoveItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Remove(c.Param("itemID")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ConfirmItem marks an item confirmed.
func (s *Server) ConfirmItem(c *gin.Context) {
	s.itemAction(c, (*live.Session).Confirm)
}

// DismissItem marks an item dismissed.
func (s *Server) DismissItem(c *gin.Context) {
	s.itemAction(c, (*live.Session).Dismiss)
}

// RetryItem queues a failed enhancement again.
func (s *Server) RetryItem(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	id := c.Param("itemID")
	if err := sess.Retry(id); err != nil {
		s.writeError(c, err)
		return
	}
	it, _ := sess.Get(id)
	c.JSON(http.StatusAccepted, it)
}

func (s *Server) itemAction(c *gin.Context, action func(*live.Session, string) error) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	id := c.Param("itemID")
	if err := action(sess, id); err != nil {
		s.writeError(c, err)
		return
	}
	it, _ := sess.Get(id)
	c.JSON(http.StatusOK, it)
}
