package api

import (
	"net/http/httptest"
	"testing"
)

func TestPrincipalFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		role     string
		wantUser string
		wantRole string
	}{
		{"admin", "u-1", "admin", "u-1", RoleAdmin},
		{"finance mixed case", "u-2", "Finance", "u-2", RoleFinance},
		{"unknown role defaults to readonly", "u-3", "superuser", "u-3", RoleReadOnly},
		{"missing role defaults to readonly", "u-4", "", "u-4", RoleReadOnly},
		{"whitespace trimmed", " u-5 ", " admin ", "u-5", RoleAdmin},
		{"anonymous", "", "", "", RoleReadOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/datalake/files/status", nil)
			if tt.userID != "" {
				r.Header.Set("X-User-ID", tt.userID)
			}
			if tt.role != "" {
				r.Header.Set("X-User-Role", tt.role)
			}
			p := PrincipalFromRequest(r)
			if p.UserID != tt.wantUser || p.Role != tt.wantRole {
				t.Errorf("PrincipalFromRequest() = %+v, want user %q role %q", p, tt.wantUser, tt.wantRole)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := httptest.NewRequest("POST", "/datalake/upload", nil)
	r.Header.Set("X-User-ID", "u-1")
	r.Header.Set("X-User-Role", "readonly")
	w := httptest.NewRecorder()
	if _, ok := RequireRole(w, r, RoleAdmin, RoleFinance); ok {
		t.Error("readonly caller must not pass an admin/finance gate")
	}
	if w.Code != 403 {
		t.Errorf("status = %d, want 403", w.Code)
	}

	r2 := httptest.NewRequest("POST", "/datalake/upload", nil)
	r2.Header.Set("X-User-ID", "u-2")
	r2.Header.Set("X-User-Role", "finance")
	w2 := httptest.NewRecorder()
	if _, ok := RequireRole(w2, r2, RoleAdmin, RoleFinance); !ok {
		t.Error("finance caller should pass")
	}

	r3 := httptest.NewRequest("POST", "/datalake/upload", nil)
	w3 := httptest.NewRecorder()
	if _, ok := RequireRole(w3, r3, RoleAdmin); ok {
		t.Error("missing identity must not pass")
	}
	if w3.Code != 401 {
		t.Errorf("status = %d, want 401", w3.Code)
	}
}
