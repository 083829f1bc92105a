package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	plantdomain "github.com/smallbiznis/plantcare/internal/plant/domain"
)

func (s *Server) ListPlants(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	items, err := s.plantSvc.List(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []plantdomain.Response{}
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) CreatePlant(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	var req plantdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	plant, err := s.plantSvc.Create(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plant)
}

func (s *Server) GetPlant(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	plant, err := s.plantSvc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plant)
}
