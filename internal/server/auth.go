package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/plantcare/internal/auth/domain"
	"go.uber.org/zap"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Location string `json:"location"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SetLocationRequest struct {
	Location string `json:"location"`
}

type userView struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Location string `json:"location"`
	Role     string `json:"role,omitempty"`
}

func (s *Server) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Username: req.Username,
		Password: req.Password,
		Location: req.Location,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": user.ID.String()})
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Username:  strings.TrimSpace(req.Username),
		Password:  req.Password,
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		s.log.Info("login failed", zap.String("username", strings.TrimSpace(req.Username)), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"user_id": result.User.ID.String()})
}

func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	if err := s.authsvc.Logout(c.Request.Context(), token); err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Me(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	user, err := s.authsvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view := userView{UserID: user.ID.String(), Username: user.Username, Location: user.Location}
	if s.authzSvc != nil {
		if role, err := s.authzSvc.RoleOf(c.Request.Context(), userID); err == nil {
			view.Role = role
		}
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) SetLocation(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	var req SetLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.SetLocation(c.Request.Context(), userID, req.Location)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "location": user.Location})
}

// Weather reports current conditions at the subject's stored location.
func (s *Server) Weather(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	user, err := s.authsvc.Get(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	report, err := s.weather.Current(c.Request.Context(), user.Location)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
