// Package errors: gin middleware for centralized error handling.
//
// Middleware Functions:
//   - ErrorHandler: converts AppError (or a generic error) on c.Errors into a JSON response
//   - Recovery: recovers from panics
//   - HandleError: helper for error responses in handlers
//   - AbortWithError: helper to abort a request with an error
//
// Example Usage:
//
//	router.Use(errors.Recovery())
//	router.Use(errors.ErrorHandler())
//
//	func handler(c *gin.Context) {
//	    if !ok {
//	        errors.AbortWithError(c, errors.SignatureInvalid("hmac mismatch"))
//	        return
//	    }
//	}
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is a middleware that handles errors consistently.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last()

		if appErr, ok := err.Err.(*AppError); ok {
			if appErr.StatusCode >= 500 {
				log.Error().Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
			} else {
				log.Warn().Str("code", appErr.Code).Msg(appErr.Message)
			}
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		log.Error().Err(err.Err).Msg("unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   ErrCodeInternalServer,
			Message: "An unexpected error occurred",
			Code:    ErrCodeInternalServer,
		})
	}
}

// Recovery is a middleware that recovers from panics.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("recovered from panic")

				c.JSON(http.StatusInternalServerError, ErrorResponse{
					Error:   ErrCodeInternalServer,
					Message: "An unexpected error occurred",
					Code:    ErrCodeInternalServer,
				})
				c.Abort()
			}
		}()

		c.Next()
	}
}

// HandleError is a helper function to handle errors in handlers.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		c.Error(appErr)
		c.JSON(appErr.StatusCode, appErr.ToResponse())
		return
	}
	internalErr := InternalServer(err.Error())
	c.Error(internalErr)
	c.JSON(internalErr.StatusCode, internalErr.ToResponse())
}

// AbortWithError is a helper to abort a request with an error.
func AbortWithError(c *gin.Context, err *AppError) {
	if err.Code == ErrCodeUnauthenticated {
		c.Header("WWW-Authenticate", err.Details)
	}
	c.Error(err)
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
