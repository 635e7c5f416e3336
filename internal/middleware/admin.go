package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminKeyHeader carries the admin key on admin routes.
const AdminKeyHeader = "X-Admin-Key"

// AdminMiddleware guards admin routes with a key checked against a bcrypt
// hash. Without a configured hash every admin request is refused.
type AdminMiddleware struct {
	keyHash []byte
}

// NewAdminMiddleware creates a new admin authentication middleware
func NewAdminMiddleware(adminKeyHash string) *AdminMiddleware {
	return &AdminMiddleware{keyHash: []byte(adminKeyHash)}
}

// Enabled reports whether an admin key hash is configured.
func (am *AdminMiddleware) Enabled() bool {
	return len(am.keyHash) > 0
}

// RequireAdminAuth accepts the key from the X-Admin-Key header or as a
// Bearer token.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !am.Enabled() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Admin endpoints are disabled",
				"code":  "admin_disabled",
			})
			return
		}

		key := c.GetHeader(AdminKeyHeader)
		if key == "" {
			key, _ = bearerToken(c.GetHeader("Authorization"))
		}
		if !am.ValidateAdminKey(key) {
			abortUnauthorized(c, "Valid admin key required for this endpoint")
			return
		}
		c.Next()
	}
}

// ValidateAdminKey compares key with the configured hash.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if key == "" || !am.Enabled() {
		return false
	}
	return bcrypt.CompareHashAndPassword(am.keyHash, []byte(key)) == nil
}

// HashAdminKey returns the bcrypt hash to configure as admin_key_hash.
func HashAdminKey(key string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
