package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const userContextKey = "UserID"

// tokenTTL is how long an issued session token stays valid.
const tokenTTL = 24 * time.Hour

// UserClaims represents JWT claims for authenticated users.
type UserClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func generateToken(userID, secret string, expiresAt time.Time) (string, error) {
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func parseToken(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims.UserID, nil
	}
	return "", errors.New("invalid token claims")
}

// AuthMiddleware enforces JWT auth for protected routes.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "MISSING_TOKEN",
				"error": "missing Authorization header",
			})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_AUTH_HEADER",
				"error": "invalid Authorization header",
			})
			return
		}

		userID, err := parseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "INVALID_TOKEN",
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(userContextKey, userID)
		c.Next()
	}
}

// login authenticates the configured operator account and issues a JWT.
func (s *Server) login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	if s.adminPwdHash == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "AUTH_NOT_CONFIGURED",
			"error": "no operator password configured",
		})
		return
	}

	if req.Username != s.adminUser ||
		bcrypt.CompareHashAndPassword([]byte(s.adminPwdHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":  "INVALID_CREDENTIALS",
			"error": "invalid username or password",
		})
		return
	}

	expiresAt := time.Now().Add(tokenTTL)
	token, err := generateToken(req.Username, s.jwtSecret, expiresAt)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "TOKEN_ERROR",
			"error": "failed to issue token",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC(),
	})
}
