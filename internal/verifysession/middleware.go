// Package verifysession implements the Verified-Session Filter (C4): admits a
// request only when its bearer's origin_jti has a live entry in the
// verified-session cache.
package verifysession

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hee-tis/credential-broker/internal/cache"
	apperrors "github.com/hee-tis/credential-broker/internal/errors"
	"github.com/hee-tis/credential-broker/internal/jwtdecoder"
	"github.com/hee-tis/credential-broker/internal/models"
)

const challengeRealm = "/api/verify/identity"

// OriginJTIContextKey is the gin context key the middleware stores the
// bearer's origin_jti under, for handlers that need it (e.g. hasVerifiedSession).
const OriginJTIContextKey = "originJTI"

// Middleware builds the verified-session filter. It is skipped for /callback
// routes (§4.4). It does not evict on read — a verified session admits any
// number of requests within its TTL.
func Middleware(decoder *jwtdecoder.Decoder, store *cache.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasSuffix(c.Request.URL.Path, "/callback") {
			c.Next()
			return
		}

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			apperrors.AbortWithError(c, apperrors.Unauthenticated(challengeRealm))
			return
		}

		var claims jwt.MapClaims
		if err := decoder.Decode(c.Request.Context(), token, &claims); err != nil {
			apperrors.AbortWithError(c, apperrors.Unauthenticated(challengeRealm))
			return
		}

		originJTI, err := jwtdecoder.ExtractOriginJTI(claims)
		if err != nil {
			apperrors.AbortWithError(c, apperrors.Unauthenticated(challengeRealm))
			return
		}

		var record models.VerifiedSessionRecord
		if err := store.Peek(c.Request.Context(), cache.CacheVerifiedSession, originJTI, &record); err != nil {
			apperrors.AbortWithError(c, apperrors.Unauthenticated(challengeRealm))
			return
		}

		c.Set(OriginJTIContextKey, originJTI)
		c.Next()
	}
}

// HasVerifiedSession reports whether originJTI currently has a live
// verified-session cache entry, without consuming it (§4.5's
// hasVerifiedSession operation).
func HasVerifiedSession(c *gin.Context, store *cache.Store, originJTI string) bool {
	var record models.VerifiedSessionRecord
	return store.Peek(c.Request.Context(), cache.CacheVerifiedSession, originJTI, &record) == nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
