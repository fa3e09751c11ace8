package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/land-rental-server/internal/apperror"
	"github.com/rongwang/land-rental-server/internal/models"
)

const flashCookie = "flash"

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// redirectTarget returns a same-site path from the redirect parameter, or ""
func redirectTarget(c *gin.Context) string {
	target := c.Query("redirect")
	if target == "" && c.Request.Method != http.MethodGet {
		target = c.PostForm("redirect")
	}
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return ""
	}
	return target
}

// flash answers page-flow callers with a 303 and a short-lived cookie
func flash(c *gin.Context, target, kind, msg string) {
	c.SetCookie(flashCookie, kind+":"+msg, 60, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, target)
}

func (h *Handler) respond(c *gin.Context, status int, key string, data interface{}) {
	msg := message(c, key)
	if target := redirectTarget(c); target != "" {
		flash(c, target, "success", msg)
		return
	}
	c.JSON(status, models.Result{Success: true, Message: msg, Data: data})
}

func (h *Handler) fail(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	status := statusFor(kind)

	attrs := []any{
		"method", c.Request.Method,
		"path", c.FullPath(),
		"actor_id", actorFrom(c).ID,
		"code", string(kind),
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "[api] request failed", attrs...)
	} else {
		h.logger.InfoContext(c.Request.Context(), "[api] request refused", attrs...)
	}

	msg := message(c, string(kind))
	if target := redirectTarget(c); target != "" {
		flash(c, target, "error", msg)
		c.Abort()
		return
	}

	result := models.Result{Success: false, Message: msg, Code: string(kind)}
	if h.debug {
		result.Detail = err.Error()
	}
	c.AbortWithStatusJSON(status, result)
}

// abortWith is used by middleware that runs before a handler exists
func abortWith(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, models.Result{
		Success: false,
		Code:    code,
		Message: message(c, code),
	})
}
