// Package http exposes the license server over chi. Handlers decode and
// validate the wire shapes, call services, and map sentinel errors onto
// the JSON error envelope; they hold no business logic of their own.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/serkayon/biolic/internal/errors"
	"github.com/serkayon/biolic/internal/fingerprint"
	"github.com/serkayon/biolic/internal/license"
	"github.com/serkayon/biolic/internal/services"
)

// SubscriptionsHandler serves the license lifecycle endpoints
type SubscriptionsHandler struct {
	svc      *services.LicenseService
	validate *validator.Validate
	log      *slog.Logger
}

// NewSubscriptionsHandler creates the subscriptions handler
func NewSubscriptionsHandler(svc *services.LicenseService, log *slog.Logger) *SubscriptionsHandler {
	return &SubscriptionsHandler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}
}

// Routes mounts the subscription endpoints on a fresh router
func (h *SubscriptionsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/activate", h.Activate)
	r.Get("/verify/{licenseID}", h.Verify)
	r.Get("/machine/fingerprint/{fingerprint}", h.VerifyByFingerprint)
	r.Get("/user/{userID}", h.GetUserLicense)
	r.Get("/machine/{mac}", h.GetByMAC)
	r.Delete("/{licenseID}", h.Deactivate)
	return r
}

type activateRequest struct {
	UserID                string          `json:"user_id" validate:"required"`
	PlanType              string          `json:"plan_type" validate:"required"`
	MachineFingerprint    string          `json:"machine_fingerprint" validate:"required"`
	FingerprintShort      string          `json:"fingerprint_short"`
	FingerprintStability  int             `json:"fingerprint_stability"`
	FingerprintComponents json.RawMessage `json:"fingerprint_components"`
	MACAddress            string          `json:"mac_address"`
	MachineID             string          `json:"machine_id"`
	MachineName           string          `json:"machine_name"`
}

type activateResponse struct {
	Message          string `json:"message"`
	EncryptedLicense string `json:"encrypted_license"`
	FingerprintShort string `json:"fingerprint_short"`
	Status           string `json:"status"`
}

// Activate handles POST /subscriptions/activate
func (h *SubscriptionsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.renderError(w, r, apierrors.Validation("Missing required fields"))
		return
	}

	res, err := h.svc.Activate(r.Context(), services.ActivateRequest{
		UserID:                req.UserID,
		PlanType:              req.PlanType,
		MachineFingerprint:    req.MachineFingerprint,
		FingerprintShort:      req.FingerprintShort,
		FingerprintStability:  req.FingerprintStability,
		FingerprintComponents: req.FingerprintComponents,
		MACAddress:            req.MACAddress,
		MachineID:             req.MachineID,
		MachineName:           req.MachineName,
	})
	if err != nil {
		h.renderError(w, r, h.mapLicenseError(err))
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, activateResponse{
		Message:          "License activated successfully",
		EncryptedLicense: res.EncryptedLicense,
		FingerprintShort: res.FingerprintShort,
		Status:           "encrypted",
	})
}

type verifyResponse struct {
	Valid         bool             `json:"valid"`
	LicenseID     string           `json:"license_id"`
	PlanName      string           `json:"plan_name"`
	PlanType      license.PlanType `json:"plan_type"`
	ActivatedAt   string           `json:"activated_at"`
	ExpiryDate    string           `json:"expiry_date"`
	IsActive      bool             `json:"is_active"`
	DaysRemaining int              `json:"days_remaining"`
	Expired       bool             `json:"expired"`
}

// Verify handles GET /subscriptions/verify/{licenseID}
func (h *SubscriptionsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	licenseID := chi.URLParam(r, "licenseID")

	res, err := h.svc.Verify(r.Context(), licenseID)
	if err != nil {
		h.renderError(w, r, h.mapLicenseError(err))
		return
	}

	l := res.License
	render.JSON(w, r, verifyResponse{
		Valid:         res.Valid,
		LicenseID:     l.LicenseID,
		PlanName:      l.PlanName,
		PlanType:      l.PlanType,
		ActivatedAt:   l.ActivatedAt.Format(time.RFC3339),
		ExpiryDate:    l.ExpiryDate.Format(time.RFC3339),
		IsActive:      l.IsActive,
		DaysRemaining: res.DaysRemaining,
		Expired:       res.Expired,
	})
}

type machineLicenseResponse struct {
	License              *license.License `json:"license"`
	HasActive            bool             `json:"has_active"`
	DaysRemaining        *int             `json:"days_remaining,omitempty"`
	Expired              *bool            `json:"expired,omitempty"`
	FingerprintShort     string           `json:"fingerprint_short,omitempty"`
	FingerprintStability *int             `json:"fingerprint_stability,omitempty"`
	Warning              string           `json:"warning,omitempty"`
}

// VerifyByFingerprint handles GET /subscriptions/machine/fingerprint/{fingerprint}
func (h *SubscriptionsHandler) VerifyByFingerprint(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")

	res, err := h.svc.VerifyByFingerprint(r.Context(), fp)
	if err != nil {
		h.renderError(w, r, h.mapLicenseError(err))
		return
	}

	resp := machineLicenseResponse{License: res.License, HasActive: res.HasActive}
	if res.License != nil {
		resp.DaysRemaining = &res.DaysRemaining
		resp.Expired = &res.Expired
		resp.FingerprintShort = res.License.FingerprintShort
		resp.FingerprintStability = &res.License.FingerprintStability
	}
	render.JSON(w, r, resp)
}

// GetUserLicense handles GET /subscriptions/user/{userID}. The machine
// is selected by the machine_fingerprint or mac_address query parameter.
func (h *SubscriptionsHandler) GetUserLicense(w http.ResponseWriter, r *http.Request) {
	fp := r.URL.Query().Get("machine_fingerprint")
	mac := r.URL.Query().Get("mac_address")
	if fp == "" && mac == "" {
		h.renderError(w, r, apierrors.Validation("machine_fingerprint or mac_address required"))
		return
	}

	res, err := h.svc.GetUserLicense(r.Context(), fp, mac)
	if err != nil {
		h.renderError(w, r, h.mapLicenseError(err))
		return
	}

	resp := machineLicenseResponse{License: res.License, HasActive: res.HasActive}
	if res.License != nil {
		resp.DaysRemaining = &res.DaysRemaining
		resp.Expired = &res.Expired
	}
	render.JSON(w, r, resp)
}

// GetByMAC handles GET /subscriptions/machine/{mac}. Deprecated: MAC
// addresses are neither unique nor stable, every response says so.
func (h *SubscriptionsHandler) GetByMAC(w http.ResponseWriter, r *http.Request) {
	mac := chi.URLParam(r, "mac")

	res, err := h.svc.GetByMAC(r.Context(), mac)
	if err != nil {
		h.renderError(w, r, h.mapLicenseError(err))
		return
	}

	resp := machineLicenseResponse{
		License:   res.License,
		HasActive: res.HasActive,
		Warning:   "MAC is unstable. Use fingerprint.",
	}
	if res.License != nil {
		resp.DaysRemaining = &res.DaysRemaining
		resp.Expired = &res.Expired
	}
	render.JSON(w, r, resp)
}

// Deactivate handles DELETE /subscriptions/{licenseID}
func (h *SubscriptionsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	licenseID := chi.URLParam(r, "licenseID")

	if err := h.svc.Deactivate(r.Context(), licenseID); err != nil {
		h.renderError(w, r, h.mapLicenseError(err))
		return
	}

	render.JSON(w, r, map[string]string{"message": "License deactivated successfully"})
}

func (h *SubscriptionsHandler) mapLicenseError(err error) *apierrors.APIError {
	switch {
	case errors.Is(err, services.ErrInvalidUser):
		return apierrors.Unauthorized("Invalid user")
	case errors.Is(err, services.ErrInvalidPlan):
		return apierrors.Validation("Invalid plan type")
	case errors.Is(err, fingerprint.ErrInvalidFingerprint):
		return apierrors.Validation("Invalid fingerprint format")
	case errors.Is(err, services.ErrTrialAlreadyUsed):
		return apierrors.TrialAlreadyUsed(license.PaidPlanTypes())
	case errors.Is(err, services.ErrLicenseNotFound):
		return apierrors.NotFound("License not found")
	case errors.Is(err, services.ErrActivationFailed):
		return apierrors.Internal("Activation failed")
	default:
		h.log.Error("unhandled license error", slog.String("error", err.Error()))
		return apierrors.ErrInternalServer
	}
}

func (h *SubscriptionsHandler) renderError(w http.ResponseWriter, r *http.Request, e *apierrors.APIError) {
	_ = render.Render(w, r, e)
}
