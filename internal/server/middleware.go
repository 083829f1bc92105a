package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/plantcare/internal/observability/context"
)

const contextUserIDKey = "user_id"

// AuthRequired resolves the session token to a subject and stores it on the context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		session, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		subject := session.UserID.String()
		c.Set(contextUserIDKey, subject)
		ctx := obscontext.WithSubjectID(c.Request.Context(), subject)
		ctx = obscontext.WithActor(ctx, obscontext.ActorUser, subject)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) userIDFromSession(c *gin.Context) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.GetString(contextUserIDKey))
	if raw == "" {
		return 0, false
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// subject is userIDFromSession for handlers behind AuthRequired.
func (s *Server) subject(c *gin.Context) (snowflake.ID, bool) {
	id, ok := s.userIDFromSession(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
	}
	return id, ok
}
