package response

import "github.com/gin-gonic/gin"

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RespondJSON writes the standard envelope
func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError writes an error envelope and stops the handler chain
func RespondError(c *gin.Context, code int, message string, errors interface{}) {
	RespondJSON(c, StatusError, code, message, nil, errors)
	c.Abort()
}
