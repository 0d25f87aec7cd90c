package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/xiaot623/gogo/apm/internal/domain"
)

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeInvalidArgument: http.StatusBadRequest,
	domain.CodeNotFound:        http.StatusNotFound,
	domain.CodeForbidden:       http.StatusForbidden,
	domain.CodeUnauthenticated: http.StatusUnauthorized,
	domain.CodeInternal:        http.StatusInternalServerError,
}

// writeError renders err as {"detail": message}. Errors that are not
// AppErrors are reported as 500 without leaking their text.
func writeError(c echo.Context, err error) error {
	appErr, ok := domain.AsAppError(err)
	if !ok {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"detail": "internal server error"})
	}

	status, ok := statusByCode[appErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, map[string]string{"detail": appErr.Message})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"detail": message})
}
