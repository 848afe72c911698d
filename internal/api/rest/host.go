package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/baluhost/balupi/internal/lifecycle"
	"github.com/baluhost/balupi/internal/types"
	"github.com/baluhost/balupi/internal/wake"
)

// wakeHost runs a full wake sequence synchronously: the response reports
// either the confirmed-online outcome or the wake failure. Only legal when
// the host is offline.
func (s *Server) wakeHost(c *gin.Context) {
	outcome, err := s.sequencer.Run(c.Request.Context())

	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"request_id": outcome.RequestID,
			"attempts":   outcome.Attempts,
		})
	case errors.Is(err, wake.ErrBudgetExhausted):
		// Non-fatal: power or network conditions may change; retry later.
		c.JSON(http.StatusOK, gin.H{
			"success":    false,
			"request_id": outcome.RequestID,
			"attempts":   outcome.Attempts,
			"error":      "wake attempt budget exhausted",
		})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		c.JSON(http.StatusConflict,
			types.NewErrorResponse("INVALID_STATE", "host is not offline", err.Error()))
	default:
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("INTERNAL", "wake sequence failed", err.Error()))
	}
}
