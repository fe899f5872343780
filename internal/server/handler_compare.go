package server

import (
	"errors"
	"fmt"
	"net/http"

	"aifiesta/internal/core"
	"aifiesta/internal/validate"

	"github.com/gin-gonic/gin"
)

// compareModels handles POST /api/compare.
// Per-model failures are part of a 200 response; only malformed or invalid
// requests and unexpected faults produce an error status.
func (s *Server) compareModels(c *gin.Context) {
	defer s.recoverComparison(c)

	var request core.ComparisonRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		s.config.Logger.Debug("Rejecting comparison request: %v", err)
		respondWithError(c, http.StatusBadRequest, core.ErrMsgInvalidBody)
		return
	}

	if err := validate.ValidateComparisonRequest(&request); err != nil {
		var vErr *validate.ValidationError
		if errors.As(err, &vErr) {
			s.config.Logger.Debug("Comparison request rejected: %s (fields: %v)", vErr.Message, validate.FailedFields(err))
			respondWithError(c, http.StatusBadRequest, vErr.Message)
			return
		}
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	for _, id := range request.SelectedModels {
		if s.modelsData.Find(id) == nil {
			s.config.Logger.Debug("Model %s is not in the catalog, passing through", id)
		}
	}

	result := s.comparer.Compare(c.Request.Context(), request.Prompt, request.SelectedModels)
	c.JSON(http.StatusOK, result)
}

func (s *Server) recoverComparison(c *gin.Context) {
	r := recover()
	if r == nil {
		return
	}
	s.config.Logger.Error("Error in compare API: %v", r)
	if c.Writer.Written() {
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":   core.ErrMsgInternal,
		"details": fmt.Sprint(r),
	})
}

func respondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}
