package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trustchecker.io/trustchecker/internal/query"
)

// GetView handles GET /views/:view, a generic view read with query params
// as cache key parameters.
func (s *Server) GetView(c *gin.Context) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result, err := s.views.Get(c.Request.Context(), query.ViewKey(c.Param("view")), params)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetDashboard handles GET /views/dashboard/:orgId.
func (s *Server) GetDashboard(c *gin.Context) {
	result, err := s.views.GetDashboardStats(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetScanVerification handles GET /views/scan/:productId.
func (s *Server) GetScanVerification(c *gin.Context) {
	result, err := s.views.GetScanVerification(c.Request.Context(), c.Param("productId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetSCMTimeline handles GET /views/scm-timeline/:shipmentId.
func (s *Server) GetSCMTimeline(c *gin.Context) {
	result, err := s.views.GetSCMTimeline(c.Request.Context(), c.Param("shipmentId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetFraudOverview handles GET /views/fraud-overview/:orgId.
func (s *Server) GetFraudOverview(c *gin.Context) {
	result, err := s.views.GetFraudOverview(c.Request.Context(), c.Param("orgId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetViewStats handles GET /views: store counters.
func (s *Server) GetViewStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.views.GetStats())
}
