package server

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/uuid"
	"github.com/web-cat/core/internal/coresrv/config"
	"github.com/web-cat/core/internal/coresrv/usersession"
)

// createSessionToken mints the HS256 bearer token handed to the client on
// login. The sid claim carries the login-session identifier shared with the
// persisted LoginSession row, so restarts and logouts invalidate tokens
// without any token-side state.
func createSessionToken(ctx context.Context, s *usersession.Session) (string, time.Time, error) {
	validity := config.Config().Auth.GetTokenValidityOrDefault()
	expiry := time.Now().Add(validity)
	now := time.Now()

	claims := jwt.MapClaims{
		"sid":    s.ID(),
		"sub":    s.User().UserName(),
		"domain": s.Domain().Name(),
		"iss":    config.Config().ServerHostName + ":" + config.Config().ServerPort,
		"exp":    jwt.NewNumericDate(expiry),
		"iat":    jwt.NewNumericDate(now),
		"nbf":    jwt.NewNumericDate(now.Add(-2 * time.Minute)), // clock-skew buffer
		"jti":    uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(config.Config().Auth.TokenSigningKey))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to sign session token")
		return "", time.Time{}, ErrTokenGeneration.Err(err)
	}
	return signed, expiry, nil
}

// parseSessionToken validates a bearer token and returns the sid claim.
func parseSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken.Msg("unexpected signing method")
		}
		return []byte(config.Config().Auth.TokenSigningKey), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", ErrInvalidToken.Err(err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken.Msg("unexpected claims type")
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return "", ErrInvalidToken.Msg("missing sid claim")
	}
	return sid, nil
}
