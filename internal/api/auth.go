package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"toastem/internal/models"
)

const (
	userKey  = "user_id"
	batchKey = "batch_id"
)

// IssueToken signs an HS256 token whose subject is userID
func IssueToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.StandardClaims{
		Subject:   userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret []byte, raw string) (string, error) {
	claims := &jwt.StandardClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// AuthMiddleware authenticates the caller from a bearer token. Websocket
// clients that cannot set headers may pass the token as ?token=.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := parseToken(secret, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

// OwnershipMiddleware lets a request through only when the authenticated
// user owns the batch named by :id. It is the single authorization point for
// batch routes.
func OwnershipMiddleware(owners Ownership) gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid batch id"})
			return
		}
		owner, err := owners.OwnerOf(c.Request.Context(), uint(batchID))
		if err != nil {
			respondError(c, err)
			c.Abort()
			return
		}
		if owner != c.GetString(userKey) {
			// a foreign batch looks like a missing one
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.Set(batchKey, uint(batchID))
		c.Next()
	}
}

func (a *BatchAPI) requireFarmOwner(c *gin.Context) {
	farmID, err := strconv.ParseUint(c.Param("farmID"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid farm id"})
		return
	}
	farm, err := a.Owners.GetFarm(c.Request.Context(), uint(farmID))
	switch {
	case errors.Is(err, models.ErrNotFound), err == nil && farm.OwnerID != c.GetString(userKey):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "farm not found"})
		return
	case err != nil:
		respondError(c, err)
		c.Abort()
		return
	}
	c.Next()
}
