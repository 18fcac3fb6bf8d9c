package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sqlx.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// healthHandler reports unhealthy with 503 when the database cannot be reached
func healthHandler(db Pinger, methodologies func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, health, dbStatus := http.StatusOK, "healthy", "up"
		if err := db.PingContext(c.Request.Context()); err != nil {
			status, health, dbStatus = http.StatusServiceUnavailable, "unhealthy", "down"
		}
		c.JSON(status, gin.H{
			"status":        health,
			"database":      dbStatus,
			"methodologies": methodologies(),
			"timestamp":     time.Now(),
		})
	}
}
