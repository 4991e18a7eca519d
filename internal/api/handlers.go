// Package api wires the broker's HTTP surface (§6): five routes behind the
// signing and verified-session filters, fronting the identity and issuance
// services.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/hee-tis/credential-broker/internal/errors"
	"github.com/hee-tis/credential-broker/internal/identity"
	"github.com/hee-tis/credential-broker/internal/issuance"
	"github.com/hee-tis/credential-broker/internal/models"
	"github.com/hee-tis/credential-broker/internal/validator"
)

// HealthChecker is a liveness probe for one dependency, used by /actuator/health.
type HealthChecker func(ctx context.Context) error

// Handler holds the collaborators the broker's routes dispatch into.
type Handler struct {
	identity  *identity.Service
	issuance  *issuance.Service
	checks    map[string]HealthChecker
}

// NewHandler builds a Handler. checks names the dependencies /actuator/health
// reports on (e.g. "redis", "mongo").
func NewHandler(identitySvc *identity.Service, issuanceSvc *issuance.Service, checks map[string]HealthChecker) *Handler {
	return &Handler{identity: identitySvc, issuance: issuanceSvc, checks: checks}
}

type verifyIdentityRequest struct {
	Forenames   string `json:"forenames" validate:"required"`
	Surname     string `json:"surname" validate:"required"`
	DateOfBirth string `json:"dateOfBirth" validate:"required,isodate"`
}

// VerifyIdentity handles POST /api/verify/identity (§6, C5 Start): builds the
// gateway's direct (non-PAR) authorize redirect and returns it as Location.
func (h *Handler) VerifyIdentity(c *gin.Context) {
	var req verifyIdentityRequest
	if !validator.BindAndValidate(c, &req) {
		return
	}

	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		apperrors.AbortWithError(c, apperrors.Unauthenticated("/api/verify/identity"))
		return
	}

	data := models.IdentityData{
		Forenames:   req.Forenames,
		Surname:     req.Surname,
		DateOfBirth: req.DateOfBirth,
	}

	location, err := h.identity.Start(c.Request.Context(), token, data, c.Query("state"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.Header("Location", location)
	c.Status(http.StatusCreated)
}

// VerifyCallback handles GET /api/verify/callback (§6, C5 Complete): the
// gateway's redirect back after identity verification.
func (h *Handler) VerifyCallback(c *gin.Context) {
	redirect := h.identity.Complete(c.Request.Context(),
		c.Query("code"), c.Query("state"), c.Query("error"), c.Query("error_description"))
	c.Redirect(http.StatusFound, redirect)
}

// IssuePlacement handles POST /api/issue/placement (§6, C6 StartIssuance).
func (h *Handler) IssuePlacement(c *gin.Context) {
	var req models.PlacementPayload
	if !validator.BindAndValidate(c, &req) {
		return
	}
	h.startIssuance(c, req)
}

// IssueProgrammeMembership handles POST /api/issue/programme-membership
// (§6, C6 StartIssuance).
func (h *Handler) IssueProgrammeMembership(c *gin.Context) {
	var req models.ProgrammeMembershipPayload
	if !validator.BindAndValidate(c, &req) {
		return
	}
	h.startIssuance(c, req)
}

func (h *Handler) startIssuance(c *gin.Context, credential models.CredentialPayload) {
	token := bearerToken(c.GetHeader("Authorization"))
	if token == "" {
		apperrors.AbortWithError(c, apperrors.Unauthenticated(c.Request.URL.Path))
		return
	}

	location, err := h.issuance.StartIssuance(c.Request.Context(), token, credential, c.Query("state"))
	if err != nil {
		apperrors.HandleError(c, err)
		return
	}

	c.Header("Location", location)
	c.Status(http.StatusCreated)
}

// IssueCallback handles GET /api/issue/callback (§6, C6 CompleteIssuance).
func (h *Handler) IssueCallback(c *gin.Context) {
	redirect := h.issuance.CompleteIssuance(c.Request.Context(), c.Query("code"), c.Query("state"))
	c.Redirect(http.StatusFound, redirect)
}

// Health handles GET /actuator/health: a liveness probe over every
// dependency registered in h.checks.
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
		} else {
			deps[name] = "ok"
		}
	}
	c.JSON(status, gin.H{"status": deps})
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
