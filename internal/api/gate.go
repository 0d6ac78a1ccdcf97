package api

import (
	"context"
	"net/http"

	"marketplace-backoffice/internal/auth"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/rbac"
	"marketplace-backoffice/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// notAuthorized is the only message a rejected caller ever sees
const notAuthorized = "not authorized to access this resource"

const callerKey = "caller"

// Authenticator turns an Authorization header into a caller
type Authenticator interface {
	Authenticate(header string) (*auth.Caller, error)
}

// PermissionResolver resolves what a caller's roles grant
type PermissionResolver interface {
	Resolve(ctx context.Context, roleIDs []int64) (rbac.PermissionSet, error)
	RoleDescriptions(ctx context.Context, roleIDs []int64) ([]string, error)
}

// Gate guards routes. It only reads state.
type Gate struct {
	auth     Authenticator
	resolver PermissionResolver
	logger   *zap.Logger
}

func NewGate(authenticator Authenticator, resolver PermissionResolver) *Gate {
	return &Gate{auth: authenticator, resolver: resolver, logger: util.GetLogger()}
}

// RequireAny lets the request through when the caller holds at least one of
// the permissions
func (g *Gate) RequireAny(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := g.authenticate(c)
		if !ok {
			return
		}

		granted, err := g.resolver.Resolve(c.Request.Context(), caller.RoleIDs)
		if err != nil {
			c.Abort()
			writeError(c, err)
			return
		}
		if !rbac.Authorize(granted, permissions) {
			g.deny(c, "insufficient_permissions", caller)
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireOwnerRole lets the request through only for holders of the owner role
func (g *Gate) RequireOwnerRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := g.authenticate(c)
		if !ok {
			return
		}

		descriptions, err := g.resolver.RoleDescriptions(c.Request.Context(), caller.RoleIDs)
		if err != nil {
			c.Abort()
			writeError(c, err)
			return
		}

		owner := false
		for _, d := range descriptions {
			if d == models.RoleOwner {
				owner = true
				break
			}
		}
		if !owner {
			g.deny(c, "not_owner", caller)
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

func (g *Gate) authenticate(c *gin.Context) (*auth.Caller, bool) {
	caller, err := g.auth.Authenticate(c.GetHeader("Authorization"))
	if err != nil {
		g.logger.Debug("authentication failed", zap.String("path", c.FullPath()), zap.Error(err))
		g.deny(c, "unauthenticated", nil)
		return nil, false
	}
	return caller, true
}

func (g *Gate) deny(c *gin.Context, reason string, caller *auth.Caller) {
	util.AccessDeniedTotal.WithLabelValues(reason).Inc()
	if caller != nil {
		g.logger.Info("access denied",
			zap.String("reason", reason),
			zap.Int64("caller_id", caller.ID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
		)
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": notAuthorized})
}

// callerFrom returns the caller stored by the gate
func callerFrom(c *gin.Context) *auth.Caller {
	v, ok := c.Get(callerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*auth.Caller)
	return caller
}
