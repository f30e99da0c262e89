package api

import (
	"net/http"
	"strings"

	"ParkRevLake/api/constants"
)

// Roles recognised on the X-User-Role header. The gateway sits behind the
// city SSO proxy which sets both identity headers on every request.
const (
	RoleAdmin    = "admin"
	RoleFinance  = "finance"
	RoleReadOnly = "readonly"
)

// Principal is the caller identity forwarded by the gateway.
type Principal struct {
	UserID string
	Role   string
}

// PrincipalFromRequest reads the identity headers. Role defaults to
// readonly when the header is absent or unrecognised.
func PrincipalFromRequest(r *http.Request) Principal {
	p := Principal{
		UserID: strings.TrimSpace(r.Header.Get(constants.HeaderUserID)),
		Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(constants.HeaderUserRole))),
	}
	switch p.Role {
	case RoleAdmin, RoleFinance, RoleReadOnly:
	default:
		p.Role = RoleReadOnly
	}
	return p
}

// RequireUser rejects requests without an identity header.
func RequireUser(w http.ResponseWriter, r *http.Request) (Principal, bool) {
	p := PrincipalFromRequest(r)
	if p.UserID == "" {
		RespondWithError(w, http.StatusUnauthorized, constants.ErrMissingUserID)
		return Principal{}, false
	}
	return p, true
}

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(w http.ResponseWriter, r *http.Request, roles ...string) (Principal, bool) {
	p, ok := RequireUser(w, r)
	if !ok {
		return Principal{}, false
	}
	for _, role := range roles {
		if p.Role == role {
			return p, true
		}
	}
	RespondWithError(w, http.StatusForbidden, constants.ErrForbidden)
	return Principal{}, false
}
