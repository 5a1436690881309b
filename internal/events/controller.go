package events

import (
	"context"
	"errors"
	"net/http"

	"eventdraw/internal/shared/utils/response"
	"eventdraw/internal/waitlist"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Controller interface {
	CreateEvent(c *gin.Context)
	GetEvent(c *gin.Context)
	GetSummary(c *gin.Context)
	JoinWaitlist(c *gin.Context)
	LeaveWaitlist(c *gin.Context)
	RespondToInvitation(c *gin.Context)
	ListEntries(c *gin.Context)
	CancelEntry(c *gin.Context)
}

type controller struct {
	service   Service
	validator *validator.Validate
}

func NewController(service Service) Controller {
	return &controller{
		service:   service,
		validator: validator.New(),
	}
}

func (ctrl *controller) CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	organizerID, ok := CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "Organizer not authenticated", nil, nil)
		return
	}

	event, err := ctrl.service.CreateEvent(c.Request.Context(), organizerID, req)
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Event created successfully", event, nil)
}

func (ctrl *controller) GetEvent(c *gin.Context) {
	event, err := ctrl.service.GetEvent(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Event retrieved successfully", event, nil)
}

func (ctrl *controller) GetSummary(c *gin.Context) {
	summary, err := ctrl.service.GetSummary(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Waitlist summary retrieved successfully", summary, nil)
}

// JoinWaitlist answers 201 when admitted and 409 with the rejection kind otherwise.
func (ctrl *controller) JoinWaitlist(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}
	eventID := c.Param("event_id")

	result, err := ctrl.service.JoinWaitlist(c.Request.Context(), eventID, userID)
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}

	body := JoinResponse{EventID: eventID, UserID: userID, Result: result, Joined: result.OK()}
	switch result {
	case waitlist.Admitted:
		response.RespondJSON(c, "success", http.StatusCreated, "Joined waitlist", body, nil)
	case waitlist.DuplicateRejected:
		response.RespondJSON(c, "error", http.StatusConflict, "Already on the waitlist", body, nil)
	case waitlist.WindowClosed:
		response.RespondJSON(c, "error", http.StatusConflict, "Registration window is closed", body, nil)
	default:
		response.RespondJSON(c, "error", http.StatusConflict, "Waitlist is full", body, nil)
	}
}

func (ctrl *controller) LeaveWaitlist(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	removed, err := ctrl.service.LeaveWaitlist(c.Request.Context(), c.Param("event_id"), userID)
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}
	if !removed {
		response.RespondJSON(c, "error", http.StatusNotFound, "Not on the waitlist", nil, nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Left waitlist", nil, nil)
}

func (ctrl *controller) RespondToInvitation(c *gin.Context) {
	userID, ok := CurrentUserID(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	entry, err := ctrl.service.RespondToInvitation(c.Request.Context(), c.Param("event_id"), userID, *req.Accept)
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Response recorded", entry, nil)
}

func (ctrl *controller) ListEntries(c *gin.Context) {
	var query ListEntriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}
	if err := ctrl.validator.Struct(&query); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	eventID := c.Param("event_id")
	entries, err := ctrl.service.ListEntries(c.Request.Context(), eventID, waitlist.Status(query.Status))
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}

	response.RespondJSON(c, "success", http.StatusOK, "Entries retrieved successfully", EntryListResponse{
		EventID: eventID,
		Status:  query.Status,
		Count:   len(entries),
		Entries: entries,
	}, nil)
}

func (ctrl *controller) CancelEntry(c *gin.Context) {
	var req CancelEntryRequest
	// an empty body is a cancel without a reason
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}
	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	entry, err := ctrl.service.CancelEntry(c.Request.Context(), c.Param("event_id"), c.Param("user_id"), req.Reason)
	if err != nil {
		response.RespondError(c, ErrorStatus(err), err.Error(), nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Entry cancelled", entry, nil)
}

// CurrentUserID reads the identity the auth middleware put on the context.
func CurrentUserID(c *gin.Context) (string, bool) {
	raw, exists := c.Get("user_id")
	if !exists {
		return "", false
	}
	id, ok := raw.(string)
	return id, ok && id != ""
}

// ErrorStatus maps service errors onto HTTP status codes.
func ErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, waitlist.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, waitlist.ErrInvalidTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
