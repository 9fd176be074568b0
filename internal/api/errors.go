package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"toastem/internal/catalog"
	"toastem/internal/models"
	"toastem/internal/process"
)

// respondError maps core errors onto HTTP responses
func respondError(c *gin.Context, err error) {
	var (
		validation *process.ValidationError
		sequence   *process.SequenceError
		config     *catalog.ConfigurationError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "validation_failed",
			"stage":      validation.Stage,
			"violations": validation.Violations,
		})
	case errors.As(err, &sequence):
		c.JSON(http.StatusConflict, gin.H{
			"error":  "sequence",
			"stage":  sequence.Stage,
			"code":   sequence.Code,
			"reason": sequence.Reason,
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "reason": "batch was modified concurrently, retry"})
	case errors.As(err, &config):
		log.Printf("Stage catalog error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration"})
	default:
		log.Printf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}
