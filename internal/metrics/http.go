package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Server holds request collectors for the HTTP API.
type Server struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewServer registers the HTTP collectors for service.
func NewServer(registerer prometheus.Registerer, service string) *Server {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "estoque",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "estoque",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})
	registerer.MustRegister(requests, latency)
	return &Server{requests: requests, latency: latency}
}

// Middleware records every request under its route template.
func (s *Server) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		s.latency.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}
