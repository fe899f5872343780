package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, s.modelsData)
}

// getModel looks a catalog entry up by its "<provider>/<name>" id.
func (s *Server) getModel(c *gin.Context) {
	id := c.Param("provider") + "/" + c.Param("name")
	model := s.modelsData.Find(id)
	if model == nil {
		respondWithError(c, http.StatusNotFound, "Model not found: "+id)
		return
	}
	c.JSON(http.StatusOK, model)
}
