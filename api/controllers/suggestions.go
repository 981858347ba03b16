package controllers

import (
	"net/http"

	"github.com/resumeloft/backend/api/responses"
	"github.com/resumeloft/backend/api/validators"
	"github.com/resumeloft/backend/internal/suggestions"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/logger"
)

// SuggestText rewrites a resume section with the AI backend. Premium only:
// an unentitled resume yields a 402 so the client can open the purchase flow.
func SuggestText(svc suggestions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "suggestion service unavailable"))
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		resumeID, ok := parseResumeID(w, r, logg)
		if !ok {
			return
		}

		var req suggestions.SuggestRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.Suggest(r.Context(), userID, resumeID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
