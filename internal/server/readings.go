package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	readingdomain "github.com/smallbiznis/plantcare/internal/reading/domain"
	"go.uber.org/zap"
)

const maxImportBytes = 8 << 20

func (s *Server) AddReading(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	var req readingdomain.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reading, err := s.readingSvc.Add(c.Request.Context(), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "id": reading.ID})
}

func (s *Server) LatestReading(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	reading, err := s.readingSvc.Latest(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (s *Server) ListReadings(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	r, err := parseTimeRange(c.Query("start"), c.Query("end"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.readingSvc.List(c.Request.Context(), userID, r)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if items == nil {
		items = []readingdomain.Reading{}
	}
	c.JSON(http.StatusOK, items)
}

// ImportReadings loads a multipart CSV upload in one transaction. One import per
// subject runs at a time when the redis lock is configured.
func (s *Server) ImportReadings(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "required", "a CSV file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	release, locked, err := s.limiter.LockImport(ctx, userID)
	if err != nil {
		s.log.Warn("import lock failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	if !locked {
		AbortWithError(c, ErrImportInProgress)
		return
	}
	defer release()

	result, err := s.readingSvc.Import(ctx, userID, file)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"imported": result.Imported,
		"batch_id": result.BatchID,
	})
}

func (s *Server) ExportReadings(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	r, err := parseTimeRange(c.Query("start"), c.Query("end"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="readings-%s.csv"`, userID))
	c.Status(http.StatusOK)
	if _, err := s.readingSvc.Export(c.Request.Context(), userID, r, c.Writer); err != nil {
		// Headers may already be on the wire; the error only reaches the log.
		AbortWithError(c, err)
	}
}

func (s *Server) ReadingsReport(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	r, err := parseTimeRange(c.Query("start"), c.Query("end"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdf, err := s.reports.Readings(c.Request.Context(), userID, r)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="readings-%s.pdf"`, userID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) PredictWatering(c *gin.Context) {
	userID, ok := s.subject(c)
	if !ok {
		return
	}

	result, err := s.predictor.Predict(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
