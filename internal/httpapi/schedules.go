package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clipflow/internal/fault"
	"clipflow/internal/schedule"
)

func (h *Handlers) createSchedule(c *gin.Context) {
	var req schedule.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeErr(c, fault.Wrap(fault.KindValidation, err, "invalid schedule payload"))
		return
	}
	s, err := h.schedules.Create(c.Request.Context(), req)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handlers) getSchedule(c *gin.Context) {
	s, ok, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !ok {
		h.writeErr(c, fault.NotFound("schedule %s not found", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handlers) updateSchedule(c *gin.Context) {
	var req schedule.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeErr(c, fault.Wrap(fault.KindValidation, err, "invalid schedule payload"))
		return
	}
	s, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handlers) deleteSchedule(c *gin.Context) {
	id := c.Param("id")
	existed, err := h.schedules.Delete(c.Request.Context(), id)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	if !existed {
		h.writeErr(c, fault.NotFound("schedule %s not found", id))
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

func (h *Handlers) listSchedules(c *gin.Context) {
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", 20)

	items, total, err := h.schedules.List(c.Request.Context(), page, perPage)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"schedules": items,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
	})
}

// calendarEvents expands active schedules over the [start, end] query
// window, both bounds required in RFC 3339.
func (h *Handlers) calendarEvents(c *gin.Context) {
	start, err := timeQuery(c, "start")
	if err != nil {
		h.writeErr(c, err)
		return
	}
	end, err := timeQuery(c, "end")
	if err != nil {
		h.writeErr(c, err)
		return
	}

	events, err := h.calendar.EventsIn(c.Request.Context(), start, end)
	if err != nil {
		h.writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func timeQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, fault.Validation("query parameter %q is required", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fault.Validation("query parameter %q must be RFC 3339: %v", name, err)
	}
	return t, nil
}
