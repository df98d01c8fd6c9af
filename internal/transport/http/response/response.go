// Package response holds the JSON envelope every API endpoint replies with.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Business codes. The first three digits follow the HTTP status they are
// usually sent with.
const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeUnsupportedType    = 40003
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeChatNotFound       = 40401
	CodeModelNotFound      = 40402
	CodeUserNotFound       = 40403
	CodeFileTooLarge       = 41300
	CodeTooManyRequests    = 42900
	CodeInternalServer     = 50000
	CodeBadGateway         = 50200
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Code: CodeOK, Message: "ok", Data: data})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{Code: code, Message: message})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, APIResponse{Code: code, Message: message})
}
