// Package middleware holds the gin middlewares shared by every API group.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Laisky/disaster-alert/internal/web/user/model"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
)

const userCtxKey = "disaster-alert/user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// Abort stops the chain with a {"message": msg} body.
func Abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// Auth loads the user behind the Authorization bearer token. The role is
// read from the stored user on every request, never from the token.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			Abort(c, http.StatusUnauthorized, "Not authorized, no token")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			gmw.GetLogger(c).Debug("reject token", zap.Error(err))
			Abort(c, http.StatusUnauthorized, "Not authorized, token failed")
			return
		}

		c.Set(userCtxKey, user)
		c.Next()
	}
}

// CurrentUser returns the user stored by Auth.
func CurrentUser(c *gin.Context) (*model.User, error) {
	v, ok := c.Get(userCtxKey)
	if !ok {
		return nil, errors.New("no authenticated user in context")
	}

	user, ok := v.(*model.User)
	if !ok || user == nil {
		return nil, errors.Errorf("unexpected user type %T", v)
	}

	return user, nil
}

// RequireRoles lets through users whose effective role is one of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	denied := "Access denied. Allowed roles: " + strings.Join(roles, ", ")

	return func(c *gin.Context) {
		user, err := CurrentUser(c)
		if err != nil {
			Abort(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		role := user.EffectiveRole()
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}

		Abort(c, http.StatusForbidden, denied)
	}
}
