package webserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/communityfund/funding/src/fundingd/config"
	"github.com/communityfund/funding/src/fundingd/types"
)

const userKey = "user"

func (h handlers) login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required,max=16"`
		Password string `json:"password" binding:"required,max=128"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var user types.User
	err := h.db.First(&user, "username = ?", req.Username).Error
	if err != nil || !user.Enabled {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "invalid credentials"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "invalid credentials"})
		return
	}

	claims := jwt.MapClaims{
		"uid": user.UUID,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":    token,
		"username": user.Username,
		"role":     user.Role.String(),
	})
}

// JWT validates the bearer token and resolves it to an enabled user.
func JWT(cfg config.Config, db *gorm.DB) gin.HandlerFunc {
	secret := []byte(cfg.JWTSecret)
	return func(c *gin.Context) {
		bearer := c.GetHeader("Authorization")
		if !strings.HasPrefix(bearer, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(bearer[7:], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		uid, _ := claims["uid"].(string)

		var user types.User
		if err := db.First(&user, "uuid = ?", uid).Error; err != nil || !user.Enabled {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(userKey, &user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *types.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*types.User); ok {
			return u
		}
	}
	return nil
}
