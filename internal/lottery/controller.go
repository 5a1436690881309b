package lottery

import (
	"net/http"

	"eventdraw/internal/events"
	"eventdraw/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type Controller interface {
	SelectWinners(c *gin.Context)
	DrawReplacement(c *gin.Context)
	CloseDraw(c *gin.Context)
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

func (ctrl *controller) SelectWinners(c *gin.Context) {
	req, ok := ctrl.bindDraw(c)
	if !ok {
		return
	}
	result, err := ctrl.service.SelectWinners(c.Request.Context(), c.Param("event_id"), req.Count)
	ctrl.respondSelection(c, result, err, "Winners selected")
}

func (ctrl *controller) DrawReplacement(c *gin.Context) {
	req, ok := ctrl.bindDraw(c)
	if !ok {
		return
	}
	result, err := ctrl.service.DrawReplacement(c.Request.Context(), c.Param("event_id"), req.Count)
	ctrl.respondSelection(c, result, err, "Replacements drawn")
}

func (ctrl *controller) CloseDraw(c *gin.Context) {
	result, err := ctrl.service.CloseDraw(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		response.RespondError(c, events.ErrorStatus(err), err.Error(), nil)
		return
	}
	response.RespondJSON(c, "success", http.StatusOK, "Draw closed", result, nil)
}

func (ctrl *controller) bindDraw(c *gin.Context) (DrawRequest, bool) {
	var req DrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return req, false
	}
	if err := ctrl.validator.Struct(&req); err != nil {
		response.RespondJSON(c, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return req, false
	}
	return req, true
}

// respondSelection reports an empty round as success with its info note; the
// caller asked correctly, there was just nothing to draw.
func (ctrl *controller) respondSelection(c *gin.Context, result *SelectionResult, err error, message string) {
	if err != nil {
		response.RespondError(c, events.ErrorStatus(err), err.Error(), nil)
		return
	}
	if result.Info != "" {
		message = result.Info
	}
	response.RespondJSON(c, "success", http.StatusOK, message, result, nil)
}
