package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (s *Server) getStatus(c *gin.Context) {
	up, down := 0, 0
	var symbols []string
	if s.Engine != nil && s.Engine.Book != nil {
		up, down = s.Engine.Book.Breadth()
	}
	if s.Engine != nil && s.Engine.Store != nil {
		symbols = s.Engine.Store.Symbols()
	}

	c.JSON(http.StatusOK, gin.H{
		"monitoring":    s.State.Monitoring(),
		"openPositions": s.State.OpenCount(),
		"maxPositions":  s.Policy.MaxOpenPositions,
		"nbrUp":         up,
		"nbrDown":       down,
		"symbols":       symbols,
	})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.State.Positions()})
}

func (s *Server) getOrders(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	orders, err := s.Queries.ListOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "DB_ERROR",
			"error": "failed to load orders",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, s.Policy)
}

func (s *Server) startMonitor(c *gin.Context) {
	s.State.SetMonitoring(true)
	c.JSON(http.StatusOK, gin.H{"monitoring": true})
}

func (s *Server) stopMonitor(c *gin.Context) {
	s.State.SetMonitoring(false)
	c.JSON(http.StatusOK, gin.H{"monitoring": false})
}

// closePosition force-closes the open position on a symbol at market.
func (s *Server) closePosition(c *gin.Context) {
	symbol := c.Param("symbol")
	if s.Positions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "TRADING_DISABLED",
			"error": "position manager not running",
		})
		return
	}
	if !s.Positions.CloseManual(c.Request.Context(), symbol) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "NO_POSITION",
			"error": "no open position for " + symbol,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": symbol})
}
