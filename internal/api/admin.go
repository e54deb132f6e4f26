package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"broadcast-console/internal/backend"
	"broadcast-console/internal/coordinator"
	"broadcast-console/internal/notify"
	"broadcast-console/pkg/models"

	"github.com/gin-gonic/gin"
)

const contactsTemplateName = "contacts_template.csv"

// AdminBackend is the admin slice of the broadcast API
type AdminBackend interface {
	Login(ctx context.Context, password string) (string, error)
	Logout(ctx context.Context) error
	LoggedIn(ctx context.Context) bool
	UploadContacts(ctx context.Context, filename string, r io.Reader) (models.UploadResult, error)
	DownloadTemplate(ctx context.Context) ([]byte, error)
	ListMessages(ctx context.Context) ([]models.MessageTemplate, error)
	CreateMessage(ctx context.Context, in models.MessageTemplateInput) (models.MessageTemplate, error)
	UpdateMessage(ctx context.Context, id int, in models.MessageTemplateInput) (models.MessageTemplate, error)
	DeleteMessage(ctx context.Context, id int) error
	AdminStats(ctx context.Context) (models.AdminStats, error)
}

// AdminHandler proxies the admin dashboard to the broadcast API
type AdminHandler struct {
	Client   AdminBackend
	Notifier coordinator.Notifier
}

// NewAdminHandler wires the admin routes to client.
func NewAdminHandler(client AdminBackend, notifier coordinator.Notifier) *AdminHandler {
	return &AdminHandler{Client: client, Notifier: notifier}
}

// Register mounts the admin routes on g.
func (h *AdminHandler) Register(g *gin.RouterGroup) {
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/session", h.Session)
	g.POST("/contacts/upload", h.UploadContacts)
	g.GET("/contacts/template", h.DownloadTemplate)
	g.GET("/messages", h.GetMessages)
	g.POST("/messages", h.CreateMessage)
	g.PUT("/messages/:id", h.UpdateMessage)
	g.DELETE("/messages/:id", h.DeleteMessage)
	g.GET("/stats", h.GetStats)
}

// LoginRequest carries the admin password.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login exchanges the password for an admin token and stores it.
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.Client.Login(c.Request.Context(), req.Password); err != nil {
		h.Notifier.Notify(notify.LevelError, notify.LoginFailed, nil)
		respondError(c, err)
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.LoginSucceeded, nil)
	c.JSON(http.StatusOK, gin.H{"status": "Logged in"})
}

// Logout forgets the stored admin token.
func (h *AdminHandler) Logout(c *gin.Context) {
	if err := h.Client.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear session"})
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.LoggedOut, nil)
	c.JSON(http.StatusOK, gin.H{"status": "Logged out"})
}

// Session reports whether an admin token is stored.
func (h *AdminHandler) Session(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logged_in": h.Client.LoggedIn(c.Request.Context())})
}

// UploadContacts forwards a contacts CSV from the multipart "file" field.
func (h *AdminHandler) UploadContacts(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.Notifier.Notify(notify.LevelError, notify.SelectFileFirst, nil)
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	result, err := h.Client.UploadContacts(c.Request.Context(), header.Filename, f)
	if err != nil {
		if detail := backend.Detail(err); detail != "" {
			h.Notifier.Notify(notify.LevelError, notify.UploadRejected, map[string]any{"Detail": detail})
		} else {
			h.Notifier.Notify(notify.LevelError, notify.UploadFailed, nil)
		}
		respondError(c, err)
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.UploadSucceeded, map[string]any{
		"Added":   result.Added,
		"Updated": result.Updated,
	})
	c.JSON(http.StatusOK, result)
}

// DownloadTemplate serves the CSV layout for contact uploads.
func (h *AdminHandler) DownloadTemplate(c *gin.Context) {
	data, err := h.Client.DownloadTemplate(c.Request.Context())
	if err != nil {
		h.Notifier.Notify(notify.LevelError, notify.TemplateDownloadFailed, nil)
		respondError(c, err)
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.TemplateDownloaded, nil)
	c.Header("Content-Disposition", `attachment; filename="`+contactsTemplateName+`"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// GetMessages lists every message template.
func (h *AdminHandler) GetMessages(c *gin.Context) {
	templates, err := h.Client.ListMessages(c.Request.Context())
	if err != nil {
		h.loadFailed(err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

// bindTemplate reads a create/update body. Blank fields are rejected here so
// that no request reaches the API.
func (h *AdminHandler) bindTemplate(c *gin.Context) (models.MessageTemplateInput, bool) {
	var in models.MessageTemplateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return in, false
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		h.Notifier.Notify(notify.LevelError, notify.FillAllFields, nil)
		respondError(c, ErrMissingFields)
		return in, false
	}
	return in, true
}

// CreateMessage adds a template. Title and content are both required.
func (h *AdminHandler) CreateMessage(c *gin.Context) {
	in, ok := h.bindTemplate(c)
	if !ok {
		return
	}
	t, err := h.Client.CreateMessage(c.Request.Context(), in)
	if err != nil {
		h.Notifier.Notify(notify.LevelError, notify.MessageSaveFailed, nil)
		respondError(c, err)
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.MessageCreated, nil)
	c.JSON(http.StatusCreated, t)
}

// UpdateMessage replaces the template with the given id.
func (h *AdminHandler) UpdateMessage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}
	in, ok := h.bindTemplate(c)
	if !ok {
		return
	}
	t, err := h.Client.UpdateMessage(c.Request.Context(), id, in)
	if err != nil {
		h.Notifier.Notify(notify.LevelError, notify.MessageSaveFailed, nil)
		respondError(c, err)
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.MessageUpdated, nil)
	c.JSON(http.StatusOK, t)
}

// DeleteMessage removes the template with the given id.
func (h *AdminHandler) DeleteMessage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}
	if err := h.Client.DeleteMessage(c.Request.Context(), id); err != nil {
		h.Notifier.Notify(notify.LevelError, notify.MessageDeleteFailed, nil)
		respondError(c, err)
		return
	}
	h.Notifier.Notify(notify.LevelSuccess, notify.MessageDeleted, nil)
	c.JSON(http.StatusOK, gin.H{"status": "Message deleted"})
}

// GetStats returns the dashboard counters.
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.Client.AdminStats(c.Request.Context())
	if err != nil {
		h.loadFailed(err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// loadFailed stays quiet on 401; the expired-session notice covers it.
func (h *AdminHandler) loadFailed(err error) {
	if !errors.Is(err, backend.ErrUnauthorized) {
		h.Notifier.Notify(notify.LevelError, notify.AdminDataLoadFailed, nil)
	}
}
