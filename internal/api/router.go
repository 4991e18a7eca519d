package api

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/hee-tis/credential-broker/internal/errors"
	"github.com/hee-tis/credential-broker/internal/jwtdecoder"
	"github.com/hee-tis/credential-broker/internal/signing"
	"github.com/hee-tis/credential-broker/internal/verifysession"

	"github.com/hee-tis/credential-broker/internal/cache"
)

// NewRouter assembles the gin engine: global recovery/error handling, then
// the signing filter (C3) on every signed route, then the verified-session
// filter (C4) on the issuance routes only — identity verification is how a
// session gets established, so it doesn't require one yet (§5).
func NewRouter(handler *Handler, signatureSecret []byte, freshness signing.FreshnessChecker, decoder *jwtdecoder.Decoder, store *cache.Store) *gin.Engine {
	router := gin.New()
	router.Use(apperrors.Recovery())
	router.Use(apperrors.ErrorHandler())

	verify := router.Group("/api/verify")
	verify.Use(signing.Middleware(signatureSecret, freshness))
	verify.POST("/identity", handler.VerifyIdentity)
	verify.GET("/callback", handler.VerifyCallback)

	issue := router.Group("/api/issue")
	issue.Use(signing.Middleware(signatureSecret, freshness))
	issue.Use(verifysession.Middleware(decoder, store))
	issue.POST("/placement", handler.IssuePlacement)
	issue.POST("/programme-membership", handler.IssueProgrammeMembership)
	issue.GET("/callback", handler.IssueCallback)

	router.GET("/actuator/health", handler.Health)

	return router
}
