package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "trustchecker.io/trustchecker/internal/pkg/errors"
)

// GetDomainRegistry handles GET /domains: registry stats and invariants.
func (s *Server) GetDomainRegistry(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stats":      s.domains.GetStats(),
		"invariants": s.domains.GetAllInvariants(),
	})
}

// GetDomain handles GET /domains/:key.
func (s *Server) GetDomain(c *gin.Context) {
	d := s.domains.GetDomain(c.Param("key"))
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "UNKNOWN_DOMAIN",
			"message": "unknown domain: " + c.Param("key"),
		})
		return
	}
	c.JSON(http.StatusOK, d)
}

// boundaryRequest is the body of POST /domains/boundary-check.
type boundaryRequest struct {
	Tables []string `json:"tables" binding:"required"`
}

// CheckBoundary handles POST /domains/boundary-check, reporting whether a
// write set spans multiple bounded contexts and therefore needs a saga.
func (s *Server) CheckBoundary(c *gin.Context) {
	var req boundaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_BODY", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.domains.CheckTransactionBoundary(req.Tables))
}

// GetSagas handles GET /sagas: active plus recent saga instances.
func (s *Server) GetSagas(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	c.JSON(http.StatusOK, gin.H{
		"active": s.sagas.GetActiveSagas(),
		"recent": s.sagas.GetRecentSagas(limit),
		"stats":  s.sagas.GetStats(),
	})
}

// GetSagaByID handles GET /sagas/:id.
func (s *Server) GetSagaByID(c *gin.Context) {
	snap, ok := s.sagas.GetSagaByID(c.Param("id"))
	if !ok {
		_ = c.Error(apperrors.Newf(apperrors.CodeUnknownSaga, "unknown saga: %s", c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, snap)
}
