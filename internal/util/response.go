package util

import (
	"net/http"

	"frubric_backend/internal/rubric"
	"frubric_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context) {
	Error(c, http.StatusUnauthorized, "Unauthorized")
}

func Forbidden(c *gin.Context) {
	Error(c, http.StatusForbidden, "Forbidden")
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Resource not found")
}

func InternalServerError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal server error")
}

func LogInternalError(c *gin.Context, err error) {
	logger.Log.Error("Internal server error",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	InternalServerError(c)
}

// ValidationFailed 返回按字段组织的校验错误，前端据此定位到具体节点
func ValidationFailed(c *gin.Context, errs rubric.ValidationErrors) {
	c.JSON(http.StatusBadRequest, Response{
		Code:    http.StatusBadRequest,
		Message: "validation failed",
		Data:    errs,
	})
}

var notFoundErrors = []error{
	ErrAreaNotFound,
	ErrDefinitionNotFound,
	ErrInstanceNotFound,
	ErrSessionNotFound,
}

var badRequestErrors = []error{
	ErrDefinitionNotReady,
	ErrInstanceNotEditable,
	ErrLevelScoreOutOfRange,
	ErrMissingFilling,
	ErrInvalidBackup,
	ErrUnresolvedParent,
	rubric.ErrInvalidScore,
	rubric.ErrInvalidNodeID,
	rubric.ErrCriterionNotFound,
	rubric.ErrLevelNotFound,
	rubric.ErrDescriptorMissing,
	rubric.ErrZeroLevel,
	rubric.ErrUnknownStatus,
	rubric.ErrEmptyScoreRange,
}

// HandleError 将服务层错误映射为 HTTP 响应
func HandleError(c *gin.Context, err error) {
	var verrs rubric.ValidationErrors
	if errors.As(err, &verrs) {
		ValidationFailed(c, verrs)
		return
	}
	if errors.Is(err, ErrPermissionDenied) {
		Forbidden(c)
		return
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			Error(c, http.StatusNotFound, err.Error())
			return
		}
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			BadRequest(c, err.Error())
			return
		}
	}
	LogInternalError(c, err)
}
