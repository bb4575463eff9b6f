// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/autonomyv2/autonomyd/internal/apierr"
	"github.com/autonomyv2/autonomyd/internal/audit"
	"github.com/autonomyv2/autonomyd/internal/auth"
)

// requireAdmin gates a handler behind the shared-secret admin token. An
// empty configured token fails closed with ADMIN_TOKEN_NOT_CONFIGURED (503);
// a present but mismatched token fails with INVALID_ADMIN_TOKEN (401) and
// writes a denied admin_auth audit row.
func (c *Container) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.Config.AdminToken == "" {
			apierr.WriteHTTP(w, r, apierr.New(apierr.AdminTokenNotConfigured, "admin token is not configured"))
			return
		}

		if !auth.AuthorizeRequest(r, c.Config.AdminToken) {
			c.Audit.Record(r.Context(), audit.Record{
				Action:   "admin_auth",
				Result:   "denied",
				TargetID: r.URL.Path,
				Error:    &audit.ErrorDetail{Code: string(apierr.InvalidAdminToken), Message: "invalid or missing admin token"},
			})
			apierr.WriteHTTP(w, r, apierr.New(apierr.InvalidAdminToken, "invalid or missing admin token"))
			return
		}

		next(w, r)
	}
}
