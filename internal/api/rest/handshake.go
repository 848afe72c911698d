package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/baluhost/balupi/internal/lifecycle"
	"github.com/baluhost/balupi/internal/types"
)

// hostGoingOffline handles the host's shutdown notification. The request
// body is the snapshot, stored verbatim. The host waits for a positive
// acknowledgment before powering down; a rejected transition is effectively
// shutdown denied.
func (s *Server) hostGoingOffline(c *gin.Context) {
	body := requestBody(c)

	result, err := s.orchestrator.HandleGoingOffline(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{
				"acknowledged": false,
				"error":        err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("INTERNAL", "failed to process notification", err.Error()))
		return
	}

	// Finalize shutting_down -> offline once the acknowledgment is out.
	// Within the grace window a coming-online notification aborts the
	// shutdown instead.
	grace := s.shutdownGrace
	time.AfterFunc(grace, func() {
		if _, err := s.orchestrator.FinalizeShutdown(context.Background()); err != nil &&
			!errors.Is(err, lifecycle.ErrInvalidTransition) {
			s.logger.Error("Shutdown finalization failed", zap.Error(err))
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"acknowledged":    true,
		"naming_switched": result.NamingSwitched,
		"snapshot_bytes":  len(body),
	})
}

// hostComingOnline handles the host's boot notification: commit the online
// transition, flush the inbox, point the naming record at the host. A
// duplicate while already online is a no-op success.
func (s *Server) hostComingOnline(c *gin.Context) {
	result, err := s.orchestrator.HandleComingOnline(c.Request.Context())
	if err != nil {
		if errors.Is(err, lifecycle.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{
				"acknowledged": false,
				"error":        err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("INTERNAL", "failed to process notification", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"acknowledged":    true,
		"naming_switched": result.NamingSwitched,
		"files_relocated": result.FilesRelocated,
	})
}

// handshakeStatus reports the current lifecycle state, snapshot metadata
// and inbox backlog. Read-only; guarded by the bearer token, not the proof.
func (s *Server) handshakeStatus(c *gin.Context) {
	status := s.orchestrator.Status()

	response := gin.H{
		"state": status.State,
		"since": status.Since.Format(time.RFC3339),
	}

	if _, storedAt, ok, err := s.snapshots.Latest(); err == nil && ok {
		response["last_snapshot"] = storedAt.UTC().Format(time.RFC3339)
	}

	if count, bytes, err := s.relocator.Pending(); err == nil {
		response["inbox_files"] = count
		response["inbox_bytes"] = bytes
	}

	c.JSON(http.StatusOK, response)
}

// latestSnapshot returns the stored snapshot verbatim.
func (s *Server) latestSnapshot(c *gin.Context) {
	data, storedAt, ok, err := s.snapshots.Latest()
	if err != nil {
		c.JSON(http.StatusInternalServerError,
			types.NewErrorResponse("INTERNAL", "failed to read snapshot", err.Error()))
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound,
			types.NewErrorResponse("NOT_FOUND", "no snapshot stored", nil))
		return
	}

	c.Header("Last-Modified", storedAt.UTC().Format(http.TimeFormat))
	c.Data(http.StatusOK, "application/json", data)
}
