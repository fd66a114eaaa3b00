// Package server implements the monitoring API the agent reports to.
package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Uranury/bme680mon/monitor"
	"github.com/Uranury/bme680mon/store"
)

const (
	defaultHistory = 50
	maxHistory     = 1000
)

// Sink receives a copy of every accepted sample. Sink failures are logged
// and never reject the sample.
type Sink interface {
	Record(ctx context.Context, sample monitor.Sample) error
}

type Server struct {
	store *store.Store
	hub   *Hub
	sinks []Sink
	now   func() time.Time
}

func New(st *store.Store, hub *Hub, sinks ...Sink) *Server {
	return &Server{store: st, hub: hub, sinks: sinks, now: time.Now}
}

// Router builds the gin engine serving the API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET(monitor.HealthPath, s.handleUp)
	r.PUT(monitor.DataPath, s.handlePutData)
	r.GET(monitor.CurrentPath, s.handleCurrent)
	r.GET(monitor.HistoryPath, s.handleHistory)
	r.GET("/ws", s.hub.Handle)
	return r
}

func (s *Server) handleUp(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "up"})
}

func (s *Server) handlePutData(c *gin.Context) {
	var req struct {
		Temperature *float64 `json:"temperature" binding:"required"`
		Humidity    *float64 `json:"humidity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid monitoring data: " + err.Error()})
		return
	}

	sample := monitor.Sample{
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		Timestamp:   s.now().UTC(),
	}
	ctx := c.Request.Context()
	if err := s.store.Record(ctx, sample); err != nil {
		log.Printf("Error storing monitoring data: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store monitoring data"})
		return
	}
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, sample); err != nil {
			log.Printf("Error mirroring monitoring data: %v", err)
		}
	}
	s.hub.Broadcast(sample)

	log.Printf("Monitoring data: temperature=%.2f humidity=%.2f", sample.Temperature, sample.Humidity)
	c.JSON(http.StatusOK, gin.H{"message": monitor.SuccessMessage})
}

func (s *Server) handleCurrent(c *gin.Context) {
	latest, err := s.store.Latest(c.Request.Context())
	if err != nil {
		log.Printf("Error loading current monitoring data: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load monitoring data"})
		return
	}
	if latest == nil {
		c.JSON(http.StatusOK, gin.H{"temperature": nil, "humidity": nil, "timestamp": nil})
		return
	}
	c.JSON(http.StatusOK, latest)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistory
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistory {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and " + strconv.Itoa(maxHistory)})
			return
		}
		limit = n
	}
	samples, err := s.store.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Printf("Error loading monitoring history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load monitoring data"})
		return
	}
	c.JSON(http.StatusOK, samples)
}
