package controllers

import (
	"net/http"

	"github.com/resumeloft/backend/api/responses"
	"github.com/resumeloft/backend/internal/checkout"
	pkgerrors "github.com/resumeloft/backend/pkg/errors"
	"github.com/resumeloft/backend/pkg/logger"
)

// CreateCheckout starts a purchase for a resume and returns the hosted
// payment URL.
func CreateCheckout(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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

		resp, err := svc.CreateCheckout(r.Context(), userID, resumeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// VerifyPayment reports the persisted payment state for client polling.
func VerifyPayment(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
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

		resp, err := svc.VerifyPayment(r.Context(), userID, resumeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
