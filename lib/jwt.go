package lib

import (
	"errors"
	"fmt"
	"net/http"
	"time"
	"workshop_server/structs"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ParseToken parses and validates a JWT token string and returns the claims
func ParseToken(tokenStr string, secret string) (*structs.AuthClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	subStr, ok := claims["sub"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: invalid sub claim", ErrInvalidToken)
	}

	sub, err := uuid.Parse(subStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid UUID in sub claim: %v", ErrInvalidToken, err)
	}

	email, _ := claims["email"].(string)

	role, ok := claims["role"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: invalid role claim", ErrInvalidToken)
	}

	iat, ok := claims["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid iat claim", ErrInvalidToken)
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid exp claim", ErrInvalidToken)
	}

	jti := uuid.Nil
	if jtiStr, ok := claims["jti"].(string); ok {
		jti, err = uuid.Parse(jtiStr)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid UUID in jti claim: %v", ErrInvalidToken, err)
		}
	}

	return &structs.AuthClaims{
		Sub:   sub,
		Email: email,
		Role:  role,
		Iat:   time.Unix(int64(iat), 0),
		Exp:   time.Unix(int64(exp), 0),
		Jti:   jti,
	}, nil
}

// IssueAccessToken signs an HS256 access token carrying the claims ParseToken expects
func IssueAccessToken(sub uuid.UUID, email, role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub.String(),
		"email": email,
		"role":  role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"jti":   uuid.NewString(),
	})
	return token.SignedString([]byte(secret))
}

// ExtractClaims reads the access token from the Authorization header, falling
// back to the access token cookie
func ExtractClaims(r *http.Request, secret string) (*structs.AuthClaims, error) {
	accessToken, ok := GetBearerToken(r)
	if !ok {
		var err error
		accessToken, err = GetCookieValue(AccessCookieName, r)
		if err != nil {
			return nil, ErrInvalidToken
		}
	}

	return ParseToken(accessToken, secret)
}
