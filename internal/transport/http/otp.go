package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/serkayon/biolic/internal/errors"
	"github.com/serkayon/biolic/internal/services"
)

// OTPHandler serves the passcode endpoints
type OTPHandler struct {
	svc      *services.OTPService
	validate *validator.Validate
	log      *slog.Logger
}

// NewOTPHandler creates the passcode handler
func NewOTPHandler(svc *services.OTPService, log *slog.Logger) *OTPHandler {
	return &OTPHandler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}
}

// Routes mounts the passcode endpoints on a fresh router
func (h *OTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/send-otp", h.Send)
	r.Post("/verify-otp", h.Verify)
	return r
}

type sendOTPRequest struct {
	Email string `json:"email" validate:"required"`
}

// Send handles POST /otp/send-otp. Success means the code is committed
// and queued; it says nothing about mail delivery.
func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.renderError(w, r, apierrors.Validation("Email is required"))
		return
	}

	email, err := h.svc.Send(r.Context(), req.Email)
	if err != nil {
		h.renderError(w, r, h.mapOTPError(err))
		return
	}

	render.JSON(w, r, map[string]string{
		"message": "OTP queued for delivery",
		"email":   email,
	})
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

// Verify handles POST /otp/verify-otp
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.renderError(w, r, apierrors.Validation("Email and OTP required"))
		return
	}

	if err := h.svc.VerifyCode(r.Context(), req.Email, req.OTP); err != nil {
		h.renderError(w, r, h.mapOTPError(err))
		return
	}

	render.JSON(w, r, map[string]any{
		"message":  "OTP verified successfully",
		"verified": true,
		"email":    req.Email,
	})
}

func (h *OTPHandler) mapOTPError(err error) *apierrors.APIError {
	var invalid *services.InvalidCodeError

	switch {
	case errors.Is(err, services.ErrInvalidEmail):
		return apierrors.Validation("Invalid email address")
	case errors.Is(err, services.ErrOTPAlreadyPending):
		return apierrors.Conflict("OTP already sent. Please wait.")
	case errors.Is(err, services.ErrNoOTPFound):
		return apierrors.OTPFailed(http.StatusBadRequest, "No OTP found. Request again.")
	case errors.Is(err, services.ErrOTPExpired):
		return apierrors.OTPFailed(http.StatusBadRequest, "OTP expired.")
	case errors.Is(err, services.ErrOTPAttemptsExceeded):
		return apierrors.OTPFailed(http.StatusBadRequest, "Too many attempts.")
	case errors.As(err, &invalid):
		msg := fmt.Sprintf("Invalid OTP. %d attempts left.", invalid.AttemptsLeft)
		return apierrors.OTPInvalidCode(msg, invalid.AttemptsLeft)
	default:
		h.log.Error("unhandled otp error", slog.String("error", err.Error()))
		return apierrors.ErrInternalServer
	}
}

func (h *OTPHandler) renderError(w http.ResponseWriter, r *http.Request, e *apierrors.APIError) {
	_ = render.Render(w, r, e)
}
