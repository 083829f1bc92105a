package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/plantcare/internal/simulation"
	"go.uber.org/zap"
)

type simulationStatusResponse struct {
	simulation.Status
	State *simulation.State `json:"state,omitempty"`
}

func (s *Server) SimulationStatus(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}
	if s.simulator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	resp := simulationStatusResponse{Status: s.simulator.Status()}
	if state, ok := s.simulator.StateFor(userID); ok {
		resp.State = &state
	}
	c.JSON(http.StatusOK, resp)
}

// SimulationTick runs one tick inline and reports what it wrote.
func (s *Server) SimulationTick(c *gin.Context) {
	if s.simulator == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	report, err := s.simulator.Tick(c.Request.Context())
	if err != nil {
		s.log.Warn("manual simulation tick failed",
			zap.String("class", simulation.ClassOf(err)),
			zap.Error(err),
		)
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) SimulationTuning(c *gin.Context) {
	c.JSON(http.StatusOK, s.tuning.Get())
}
