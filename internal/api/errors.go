package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindUnauthenticated: http.StatusUnauthorized,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindInvalidInput:    http.StatusBadRequest,
	apperr.KindConflict:        http.StatusConflict,
}

// writeError is the single place a failure becomes a status code. Internal
// failures are logged and answered without detail.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	status, ok := statusByKind[kind]
	if !ok {
		util.GetLogger().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Any("params", c.Params),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(status, gin.H{"error": apperr.MessageOf(err)})
}

// writeBindError reports a malformed request body
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": details,
		})
		return
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
