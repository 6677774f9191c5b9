// README: Base handler utilities (JSON helpers, caller checks, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"transferhub/internal/http/middleware"
	"transferhub/internal/modules/job"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the ids issued by types.NewID as well as external
// (Firebase) uids: alphanumerics, '-' and '_', at most 64 chars.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps the shared error sentinels onto status codes.
func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrInvalidTransition):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID reads and validates a path parameter; on failure the response is
// already written.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func caller(c *gin.Context) (types.ID, user.Role) {
	return types.ID(middleware.CallerUID(c)), user.Role(middleware.CallerRole(c))
}

// requireRole writes 403 and returns false unless the caller has one of roles.
func requireRole(c *gin.Context, roles ...user.Role) bool {
	_, role := caller(c)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	writeError(c, http.StatusForbidden, "forbidden")
	return false
}

func actorType(role user.Role) string {
	switch role {
	case user.RoleAdmin:
		return job.ActorAdmin
	case user.RoleDriver:
		return job.ActorDriver
	default:
		return job.ActorClient
	}
}

func ownsJob(j *job.Job, id types.ID) bool {
	return j.ClientID == id || (j.PartnerID != nil && *j.PartnerID == id)
}
