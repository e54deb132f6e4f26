package api

import (
	"context"
	"net/http"
	"strconv"

	"broadcast-console/internal/coordinator"
	"broadcast-console/internal/models"
	"broadcast-console/internal/notify"
	"broadcast-console/internal/ws"
	pkgmodels "broadcast-console/pkg/models"

	"github.com/gin-gonic/gin"
)

// ViewHeader names the connected view a request comes from. Hand-offs the
// request triggers are opened by that view only.
const ViewHeader = "X-View-ID"

// HistoryLister reads the recorded dispatches.
type HistoryLister interface {
	Recent(ctx context.Context, limit int) ([]models.DispatchRecord, error)
}

// NoticeLister returns the notices raised so far.
type NoticeLister interface {
	Recent() []notify.Notice
}

// ConsoleHandler exposes the operator's session to the view
type ConsoleHandler struct {
	Coord   *coordinator.Coordinator
	History HistoryLister
	Notices NoticeLister
}

// NewConsoleHandler wires the console routes to coord.
func NewConsoleHandler(coord *coordinator.Coordinator, history HistoryLister, notices NoticeLister) *ConsoleHandler {
	return &ConsoleHandler{Coord: coord, History: history, Notices: notices}
}

// Register mounts the console routes on g.
func (h *ConsoleHandler) Register(g *gin.RouterGroup) {
	g.GET("/state", h.GetState)
	g.POST("/templates/reload", h.ReloadTemplates)
	g.POST("/templates/select", h.SelectTemplate)
	g.POST("/batch", h.FetchBatch)
	g.POST("/dispatch", h.Dispatch)
	g.POST("/dispatch/cancel", h.CancelHandoffs)
	g.POST("/stats/refresh", h.RefreshStats)
	g.GET("/search", h.GetSearch)
	g.POST("/search", h.Search)
	g.POST("/handoff", h.OpenContact)
	g.GET("/history", h.GetHistory)
	g.GET("/notices", h.GetNotices)
}

// GetState returns the full snapshot the view renders.
func (h *ConsoleHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Coord.Snapshot())
}

// ReloadTemplates fetches the message templates again.
func (h *ConsoleHandler) ReloadTemplates(c *gin.Context) {
	templates, err := h.Coord.LoadTemplates(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

// SelectTemplateRequest picks a template by id.
type SelectTemplateRequest struct {
	ID int `json:"id" binding:"required"`
}

// SelectTemplate picks the template later batches are drawn for.
func (h *ConsoleHandler) SelectTemplate(c *gin.Context) {
	var req SelectTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := h.Coord.SelectTemplate(req.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// FetchBatch draws a new contact batch for the selected template.
func (h *ConsoleHandler) FetchBatch(c *gin.Context) {
	contacts, err := h.Coord.FetchBatch(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkgmodels.ContactList{Contacts: contacts})
}

// DispatchRequest names the channel to send the batch over.
type DispatchRequest struct {
	Channel string `json:"channel" binding:"required"`
}

// Dispatch sends the current batch. Hand-offs are opened by the view named
// in the ViewHeader, or the most recent one.
func (h *ConsoleHandler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	channel, err := pkgmodels.ParseChannel(req.Channel)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// bookkeeping finishes even if the view disconnects
	report, err := h.Coord.Dispatch(context.WithoutCancel(viewContext(c)), channel)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channel": report.Channel,
		"count":   report.Count,
		"targets": report.Targets,
		"stride":  report.Stride,
	})
}

func viewContext(c *gin.Context) context.Context {
	return ws.WithView(c.Request.Context(), c.GetHeader(ViewHeader))
}

// CancelHandoffs stops the pending hand-offs of every dispatch in progress.
func (h *ConsoleHandler) CancelHandoffs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cancelled": h.Coord.CancelHandoffs()})
}

// RefreshStats polls the quota counters now.
func (h *ConsoleHandler) RefreshStats(c *gin.Context) {
	q, err := h.Coord.RefreshStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, coordinator.StatsView{Quota: q, Usage: coordinator.UsageOf(q)})
}

// SearchRequest is one keystroke of the phone search box.
type SearchRequest struct {
	Query string `json:"q"`
}

// Search feeds one keystroke to the debounced lookup. Results arrive as
// "search" events.
func (h *ConsoleHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.Coord.Search(req.Query)
	c.JSON(http.StatusAccepted, h.Coord.Lookup().State())
}

// GetSearch returns the lookup state without changing it.
func (h *ConsoleHandler) GetSearch(c *gin.Context) {
	c.JSON(http.StatusOK, h.Coord.Lookup().State())
}

// HandoffRequest opens one contact outside any batch.
type HandoffRequest struct {
	Contact pkgmodels.Contact `json:"contact" binding:"required"`
	Channel string            `json:"channel" binding:"required"`
}

// OpenContact hands a single search result off to the requesting view.
func (h *ConsoleHandler) OpenContact(c *gin.Context) {
	var req HandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	target, err := h.Coord.OpenContact(viewContext(c), req.Contact, pkgmodels.Channel(req.Channel))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

// GetHistory lists recent dispatches, newest first.
func (h *ConsoleHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetNotices lists the notices raised so far.
func (h *ConsoleHandler) GetNotices(c *gin.Context) {
	c.JSON(http.StatusOK, h.Notices.Recent())
}
