// Package auth issues and verifies bearer tokens that carry the caller's
// account address.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"tokenlease/pkg/response"
	"tokenlease/pkg/tokens"
)

const callerKey = "caller"

var ErrInvalidToken = errors.New("invalid or expired token")

type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token whose subject is addr.
func (i *Issuer) Issue(addr tokens.Address, email string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(addr),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "tokenlease",
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (i *Issuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || tokens.Address(claims.Subject) == tokens.SystemAccount {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller address on the context.
func Middleware(i *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.AbortWithError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := i.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.AbortWithError(c, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		SetCaller(c, tokens.Address(claims.Subject))
		c.Next()
	}
}

func SetCaller(c *gin.Context, addr tokens.Address) {
	c.Set(callerKey, addr)
}

func Caller(c *gin.Context) (tokens.Address, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return "", false
	}
	addr, ok := v.(tokens.Address)
	return addr, ok && addr != ""
}

// MustCaller writes a 401 and reports false when no caller is set.
func MustCaller(c *gin.Context) (tokens.Address, bool) {
	addr, ok := Caller(c)
	if !ok {
		response.SendErrorResponse(c, http.StatusUnauthorized, "unauthorized", "caller not authenticated")
	}
	return addr, ok
}
