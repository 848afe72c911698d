package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/baluhost/balupi/internal/types"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login issues the bearer token for the read-only dashboard surface.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest,
			types.NewErrorResponse("BAD_REQUEST", "username and password required", nil))
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized,
			types.NewErrorResponse("UNAUTHENTICATED", "invalid credentials", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
	})
}
