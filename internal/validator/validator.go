// Package validator adapts go-playground/validator for the broker's request
// payloads (identity verification start, issuance start), producing
// the field→message map the BAD_REQUEST error kind carries (§7).
package validator

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("isodate", validateISODate)
}

// ValidateStruct validates a struct and returns the raw validator error, if any.
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// ValidateRequest validates a request struct and returns a field→message map.
// Returns nil if validation passes.
func ValidateRequest(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs := make(map[string]string)

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			field := strings.ToLower(e.Field())
			fieldErrs[field] = formatValidationError(e)
		}
	}

	return fieldErrs
}

// BindAndValidate binds JSON and validates in one step.
// Returns true if successful, false if binding or validation failed (and
// writes a BAD_REQUEST response).
func BindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "BAD_REQUEST",
			"message": "request validation failed",
			"details": err.Error(),
		})
		return false
	}

	if errs := ValidateRequest(req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "BAD_REQUEST",
			"message": "request validation failed",
			"fields":  errs,
		})
		return false
	}

	return true
}

// formatValidationError converts validator errors to human-readable messages.
func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "uuid":
		return "must be a valid UUID"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// validateISODate ensures a date-of-birth field is a calendar date in
// YYYY-MM-DD form, the format the identity match's exact-DOB comparison
// (§4.5) operates on.
func validateISODate(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}
