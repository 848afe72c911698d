package auth

import (
	"fmt"

	"go.uber.org/zap"
)

// Service authenticates the single dashboard admin and issues bearer tokens
// for the read-only status surface. The lifecycle handshake endpoints do NOT
// use this service; they carry their own HMAC proof.
type Service struct {
	logger         *zap.Logger
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher

	adminUsername     string
	adminPasswordHash string
}

// NewService wires the auth service around the configured admin account.
func NewService(logger *zap.Logger, jwtHandler *JWTHandler, adminUsername, adminPasswordHash string) *Service {
	return &Service{
		logger:            logger,
		jwtHandler:        jwtHandler,
		passwordHasher:    NewPasswordHasher(),
		adminUsername:     adminUsername,
		adminPasswordHash: adminPasswordHash,
	}
}

// Login verifies the admin credentials and returns a signed access token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.adminUsername {
		s.logger.Warn("Login failed: unknown user", zap.String("username", username))
		return "", fmt.Errorf("invalid credentials")
	}

	valid, err := s.passwordHasher.VerifyPassword(password, s.adminPasswordHash)
	if err != nil || !valid {
		s.logger.Warn("Login failed: invalid password", zap.String("username", username))
		return "", fmt.Errorf("invalid credentials")
	}

	token, err := s.jwtHandler.GenerateToken(username)
	if err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}

	s.logger.Info("Login succeeded", zap.String("username", username))
	return token, nil
}

// ValidateToken validates a bearer token and returns its claims.
func (s *Service) ValidateToken(token string) (*JWTClaims, error) {
	return s.jwtHandler.ValidateToken(token)
}
