package shared

import (
	"errors"
	"fmt"

	"github.com/agrimart/backoffice/internal/platform/httpx"
)

// Session and credential failures. Each wraps the httpx sentinel it should be
// reported as.
var (
	ErrNotFound           = fmt.Errorf("record not found: %w", httpx.ErrNotFound)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	ErrCSRFTokenMissing   = fmt.Errorf("csrf token missing: %w", httpx.ErrForbidden)
	ErrCSRFTokenMismatch  = fmt.Errorf("csrf token mismatch: %w", httpx.ErrForbidden)
)

// IsCSRFFailure reports whether err came from CSRF verification.
func IsCSRFFailure(err error) bool {
	return errors.Is(err, ErrCSRFTokenMissing) || errors.Is(err, ErrCSRFTokenMismatch)
}
