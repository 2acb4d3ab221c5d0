// Package httpapi holds small helpers shared by the gin handlers.
package httpapi

import (
	"net/http"
	"strings"

	"postflow/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// HeaderWorkspaceID carries the workspace the caller acts in. Resolving the
// workspace from a session happens upstream of this service.
const HeaderWorkspaceID = "X-Workspace-ID"

// WorkspaceID reads the caller's workspace or fails with 400.
func WorkspaceID(c *gin.Context) (string, error) {
	id := strings.TrimSpace(c.GetHeader(HeaderWorkspaceID))
	if id == "" {
		return "", errutil.BadRequest("missing "+HeaderWorkspaceID+" header", nil,
			errutil.WithDetails(errutil.Detail{Field: "workspace_id", Message: "required"}))
	}
	return id, nil
}

// BindJSON decodes the body into v, mapping decode errors to 400.
func BindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return errutil.ValidationFailed("invalid request body", err,
			errutil.WithDetails(errutil.Detail{Field: "body", Message: err.Error()}))
	}
	return nil
}

// Fail hands err to the error middleware.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// OK writes v with status 200.
func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}
