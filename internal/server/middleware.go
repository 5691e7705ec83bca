package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/staybook/internal/auth"
	obscontext "github.com/smallbiznis/staybook/internal/observability/context"
)

const contextUserIDKey = "user_id"

// AuthRequired resolves the bearer token into an identity on the request
// context. Requests without a valid token stop here with 401.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.tokens.Verify(c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := auth.WithIdentity(c.Request.Context(), identity)
		ctx = obscontext.WithActor(ctx, identity.Role, identity.UserID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, identity.UserID.String())
		c.Next()
	}
}

func (s *Server) authorizeAction(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := auth.IdentityFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), identity.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
