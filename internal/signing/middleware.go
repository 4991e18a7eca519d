package signing

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/hee-tis/credential-broker/internal/errors"
	"github.com/hee-tis/credential-broker/internal/models"
)

// FreshnessChecker answers the revocation-freshness cross-check required by
// §4.3 rule 4: the last time a (tisId, credentialType) record changed.
type FreshnessChecker interface {
	GetLastModifiedDate(ctx context.Context, tisID string, credentialType models.CredentialType) (*time.Time, error)
}

// issuePathCredentialType maps the two credential issuance paths to their
// credential type, used for the freshness cross-check.
var issuePathCredentialType = map[string]models.CredentialType{
	"/api/issue/placement":            models.CredentialTypePlacement,
	"/api/issue/programme-membership": models.CredentialTypeProgrammeMembership,
}

// Middleware verifies the HMAC signature on inbound write-endpoint bodies
// (§4.3). It is skipped for /callback routes. The request body is buffered
// so downstream handlers can re-read it.
func Middleware(secret []byte, checker FreshnessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasSuffix(c.Request.URL.Path, "/callback") {
			c.Next()
			return
		}

		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			apperrors.AbortWithError(c, apperrors.SignatureInvalid("unable to read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		body, env, err := Verify(secret, rawBody, time.Now())
		if err != nil {
			if appErr, ok := err.(*apperrors.AppError); ok {
				apperrors.AbortWithError(c, appErr)
				return
			}
			apperrors.AbortWithError(c, apperrors.SignatureInvalid(err.Error()))
			return
		}

		if credType, isIssuePath := issuePathCredentialType[c.Request.URL.Path]; isIssuePath {
			tisID, _ := body["tisId"].(string)
			if tisID == "" {
				apperrors.AbortWithError(c, apperrors.SignatureInvalid("missing tisId for issuance freshness check"))
				return
			}
			lastModified, err := checker.GetLastModifiedDate(c.Request.Context(), tisID, credType)
			if err != nil {
				apperrors.AbortWithError(c, apperrors.GatewayUnavailable(err))
				return
			}
			if lastModified != nil && !lastModified.Before(env.SignedAt) {
				apperrors.AbortWithError(c, apperrors.SignatureStale())
				return
			}
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))
		c.Next()
	}
}
