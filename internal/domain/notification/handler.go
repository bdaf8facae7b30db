package notification

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"reliefdesk/internal/domain/directory"
	"reliefdesk/internal/pkg/response"
	"reliefdesk/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Send creates a notification and fans it out.
// @Summary		Send notification
// @Description	Resolves the target, stores one read-state row per recipient and pushes the notification to connected sessions.
// @Tags		Notifications
// @Security	BearerAuth
// @Param		request	body	SendRequest	true	"Content and target"
// @Success		201	{object}	SendResponse
// @Failure		400	{object}	map[string]interface{}
// @Failure		403	{object}	map[string]interface{}
// @Failure		503	{object}	map[string]interface{}
// @Router		/notifications [POST]
func (h *Handler) Send(c *gin.Context) {
	senderID := c.GetInt64("user_id")

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", errs)
		return
	}

	content, err := req.Content()
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.service.Send(c.Request.Context(), senderID, content, req.Target)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, SendResponse{ID: res.ID, Recipients: res.Recipients})
}

// Mine lists the caller's notifications, newest first.
// @Summary		My notifications
// @Tags		Notifications
// @Security	BearerAuth
// @Param		includeRead	query	bool	false	"Include read notifications"
// @Param		limit	query	int	false	"Page size (default 20, max 100)"
// @Param		cursor	query	string	false	"Cursor from the previous page"
// @Success		200	{object}	ListResponse
// @Router		/notifications/mine [GET]
func (h *Handler) Mine(c *gin.Context) {
	userID := c.GetInt64("user_id")

	q := ListQuery{UserID: userID, Cursor: c.Query("cursor")}
	if s := c.Query("includeRead"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "includeRead must be a boolean")
			return
		}
		q.IncludeRead = v
	}
	if s := c.Query("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		q.Limit = v
	}

	page, err := h.service.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	unread, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	response.Success(c, http.StatusOK, ListResponse{
		Items:       page.Items,
		NextCursor:  page.NextCursor,
		UnreadCount: unread,
	})
}

// @Summary		Unread count
// @Tags		Notifications
// @Security	BearerAuth
// @Success		200	{object}	UnreadCountResponse
// @Router		/notifications/unread-count [GET]
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.service.UnreadCount(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, UnreadCountResponse{UnreadCount: n})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid notification id")
		return
	}

	item, err := h.service.Get(c.Request.Context(), c.GetInt64("user_id"), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// MarkRead marks the given ids read for the caller. Unknown ids are ignored.
// @Summary		Mark notifications read
// @Tags		Notifications
// @Security	BearerAuth
// @Param		request	body	MarkReadRequest	true	"Notification ids"
// @Success		200	{object}	ReadState
// @Router		/notifications/mark-read [PATCH]
func (h *Handler) MarkRead(c *gin.Context) {
	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if errs := validator.Validate(req); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", errs)
		return
	}

	st, err := h.service.MarkRead(c.Request.Context(), c.GetInt64("user_id"), req.IDs)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	st, err := h.service.MarkAllRead(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidTarget):
		response.Error(c, http.StatusBadRequest, "INVALID_TARGET", err.Error())
	case errors.Is(err, directory.ErrUnknownGroup):
		response.Error(c, http.StatusBadRequest, "UNKNOWN_GROUP", err.Error())
	case errors.Is(err, ErrEmptyAudience):
		response.Error(c, http.StatusBadRequest, "EMPTY_AUDIENCE", err.Error())
	case errors.Is(err, ErrInvalidContent):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Notification not found")
	case errors.Is(err, ErrStoreUnavailable):
		response.Unavailable(c, "STORE_UNAVAILABLE", "Notification store is unavailable, retry later", time.Second)
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
