// Package services holds the business logic between the HTTP handlers
// and the repositories. Services return sentinel errors; the transport
// layer maps them onto the wire taxonomy.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/serkayon/biolic/internal/crypto"
	"github.com/serkayon/biolic/internal/fingerprint"
	"github.com/serkayon/biolic/internal/license"
	"github.com/serkayon/biolic/internal/store"
	"github.com/serkayon/biolic/internal/users"
)

var (
	// ErrInvalidUser means the requesting account does not exist or is disabled
	ErrInvalidUser = errors.New("invalid user")

	// ErrInvalidPlan means the requested plan type is unknown
	ErrInvalidPlan = errors.New("invalid plan type")

	// ErrTrialAlreadyUsed means the fingerprint has already consumed its trial
	ErrTrialAlreadyUsed = errors.New("trial already used")

	// ErrLicenseNotFound means no license matches the given identifier
	ErrLicenseNotFound = errors.New("license not found")

	// ErrActivationFailed is the opaque activation failure, including the
	// unique-fingerprint backstop firing under a concurrent activation race.
	ErrActivationFailed = errors.New("activation failed")
)

// ActivateRequest carries everything a client submits to bind a license
type ActivateRequest struct {
	UserID                string
	PlanType              string
	MachineFingerprint    string
	FingerprintShort      string
	FingerprintStability  int
	FingerprintComponents json.RawMessage
	MACAddress            string
	MachineID             string
	MachineName           string
}

// ActivationResult is what a successful activation hands back: the
// opaque token plus the display fingerprint, never the raw row.
type ActivationResult struct {
	EncryptedLicense string
	FingerprintShort string
}

// VerifyResult is the read-only validity report for a license
type VerifyResult struct {
	Valid         bool
	License       *license.License
	DaysRemaining int
	Expired       bool
}

// MachineLicenseResult reports the active license (if any) bound to a
// machine, looked up by fingerprint or MAC.
type MachineLicenseResult struct {
	License       *license.License
	HasActive     bool
	DaysRemaining int
	Expired       bool
}

// LicenseService implements the license lifecycle ledger
type LicenseService struct {
	licenses license.Repository
	users    users.Repository
	codec    *crypto.Codec
	log      *slog.Logger
	tracer   trace.Tracer

	// now is swappable for expiry tests
	now func() time.Time
}

// NewLicenseService wires the ledger with its collaborators
func NewLicenseService(licenses license.Repository, usersRepo users.Repository, codec *crypto.Codec, log *slog.Logger) *LicenseService {
	return &LicenseService{
		licenses: licenses,
		users:    usersRepo,
		codec:    codec,
		log:      log,
		tracer:   otel.Tracer("services/license"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Activate binds a plan to a machine fingerprint. A fingerprint that
// already holds a license may not re-activate trial; any other plan
// overwrites the existing row in place, keeping its license_id and
// stamping upgraded_at. The read-then-write check runs inside one
// transaction and the unique fingerprint index closes the race: a
// concurrent insert surfaces as ErrActivationFailed, never as a crash.
func (s *LicenseService) Activate(ctx context.Context, req ActivateRequest) (*ActivationResult, error) {
	ctx, span := s.tracer.Start(ctx, "license.activate")
	defer span.End()

	u, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidUser
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrInvalidUser
	}

	plan, ok := license.PlanByType(req.PlanType)
	if !ok {
		return nil, ErrInvalidPlan
	}

	fp := fingerprint.Normalize(req.MachineFingerprint)
	if err := fingerprint.Validate(fp); err != nil {
		return nil, err
	}

	shortFP := req.FingerprintShort
	if shortFP == "" {
		shortFP = fingerprint.Short(fp)
	}

	activatedAt := s.now()
	expiryDate := activatedAt.Add(plan.Duration)

	var licenseID string
	err = s.licenses.InTx(ctx, func(tr license.Repository) error {
		existing, err := tr.GetByFingerprint(ctx, fp)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if existing != nil {
			if plan.Type == license.PlanTrial {
				return ErrTrialAlreadyUsed
			}

			existing.PlanType = plan.Type
			existing.PlanName = plan.Name
			existing.PlanPrice = plan.Price
			existing.ActivatedAt = activatedAt
			existing.ExpiryDate = expiryDate
			existing.IsActive = true
			existing.UpgradedAt = &activatedAt
			existing.UpdatedAt = activatedAt
			existing.FingerprintStability = req.FingerprintStability
			existing.FingerprintComponents = req.FingerprintComponents
			existing.LastVerifiedFingerprint = &activatedAt
			licenseID = existing.LicenseID
			return tr.Update(ctx, existing)
		}

		licenseID = license.NewLicenseID()
		return tr.Create(ctx, &license.License{
			ID:                      uuid.NewString(),
			LicenseID:               licenseID,
			MachineFingerprint:      fp,
			FingerprintShort:        shortFP,
			FingerprintStability:    req.FingerprintStability,
			FingerprintComponents:   req.FingerprintComponents,
			MACAddress:              req.MACAddress,
			MachineID:               req.MachineID,
			MachineName:             req.MachineName,
			PlanType:                plan.Type,
			PlanName:                plan.Name,
			PlanPrice:               plan.Price,
			ActivatedAt:             activatedAt,
			ExpiryDate:              expiryDate,
			IsActive:                true,
			LastVerifiedFingerprint: &activatedAt,
			CreatedAt:               activatedAt,
			UpdatedAt:               activatedAt,
		})
	})
	if err != nil {
		if errors.Is(err, ErrTrialAlreadyUsed) {
			return nil, ErrTrialAlreadyUsed
		}
		if errors.Is(err, store.ErrConflict) {
			s.log.Warn("activation lost fingerprint race", slog.String("fingerprint_short", shortFP))
			return nil, ErrActivationFailed
		}
		s.log.Error("activation failed", slog.String("error", err.Error()))
		return nil, ErrActivationFailed
	}

	token, err := s.codec.Encrypt(map[string]any{
		"license_id":            licenseID,
		"activated_at":          activatedAt.Format(time.RFC3339),
		"expiry_date":           expiryDate.Format(time.RFC3339),
		"plan_name":             plan.Name,
		"plan_type":             string(plan.Type),
		"machine_fingerprint":   fp,
		"fingerprint_short":     shortFP,
		"fingerprint_stability": req.FingerprintStability,
	})
	if err != nil {
		s.log.Error("license payload encryption failed", slog.String("license_id", licenseID))
		return nil, ErrActivationFailed
	}

	span.SetAttributes(
		attribute.String("license.plan", string(plan.Type)),
		attribute.String("license.fingerprint_short", shortFP),
	)
	s.log.Info("license activated",
		slog.String("license_id", licenseID),
		slog.String("plan_type", string(plan.Type)),
		slog.String("fingerprint_short", shortFP),
	)

	return &ActivationResult{EncryptedLicense: token, FingerprintShort: shortFP}, nil
}

// Verify reports validity for a license id without mutating anything
func (s *LicenseService) Verify(ctx context.Context, licenseID string) (*VerifyResult, error) {
	ctx, span := s.tracer.Start(ctx, "license.verify")
	defer span.End()

	l, err := s.licenses.GetByLicenseID(ctx, licenseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("lookup license: %w", err)
	}

	now := s.now()
	valid := l.IsValid(now)
	return &VerifyResult{
		Valid:         valid,
		License:       l,
		DaysRemaining: l.DaysRemaining(now),
		Expired:       !valid,
	}, nil
}

// VerifyByFingerprint looks up the active license bound to a fingerprint
// and stamps its proof-of-presence timestamp. No match is not an error:
// the result reports has_active=false.
func (s *LicenseService) VerifyByFingerprint(ctx context.Context, fp string) (*MachineLicenseResult, error) {
	ctx, span := s.tracer.Start(ctx, "license.verify_by_fingerprint")
	defer span.End()

	fp = fingerprint.Normalize(fp)
	if err := fingerprint.Validate(fp); err != nil {
		return nil, err
	}

	l, err := s.licenses.GetByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &MachineLicenseResult{}, nil
		}
		return nil, fmt.Errorf("lookup license: %w", err)
	}
	if !l.IsActive {
		return &MachineLicenseResult{}, nil
	}

	now := s.now()
	l.LastVerifiedFingerprint = &now
	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("stamp verification: %w", err)
	}

	valid := l.ExpiryDate.After(now)
	return &MachineLicenseResult{
		License:       l,
		HasActive:     valid,
		DaysRemaining: l.DaysRemaining(now),
		Expired:       !valid,
	}, nil
}

// GetUserLicense resolves the active license for a machine identified by
// fingerprint (preferred) or MAC. Exactly one selector must be given.
func (s *LicenseService) GetUserLicense(ctx context.Context, fp, mac string) (*MachineLicenseResult, error) {
	ctx, span := s.tracer.Start(ctx, "license.get_user_license")
	defer span.End()

	var (
		l   *license.License
		err error
	)
	switch {
	case fp != "":
		l, err = s.licenses.GetByFingerprint(ctx, fingerprint.Normalize(fp))
	case mac != "":
		l, err = s.licenses.GetActiveByMAC(ctx, mac)
	default:
		return nil, fingerprint.ErrInvalidFingerprint
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &MachineLicenseResult{}, nil
		}
		return nil, fmt.Errorf("lookup license: %w", err)
	}
	if !l.IsActive {
		return &MachineLicenseResult{}, nil
	}

	now := s.now()
	valid := l.ExpiryDate.After(now)
	return &MachineLicenseResult{
		License:       l,
		HasActive:     valid,
		DaysRemaining: l.DaysRemaining(now),
		Expired:       !valid,
	}, nil
}

// GetByMAC is the deprecated MAC-only lookup kept for old clients
func (s *LicenseService) GetByMAC(ctx context.Context, mac string) (*MachineLicenseResult, error) {
	ctx, span := s.tracer.Start(ctx, "license.get_by_mac")
	defer span.End()

	l, err := s.licenses.GetActiveByMAC(ctx, mac)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &MachineLicenseResult{}, nil
		}
		return nil, fmt.Errorf("lookup license: %w", err)
	}

	now := s.now()
	valid := l.ExpiryDate.After(now)
	return &MachineLicenseResult{
		License:       l,
		HasActive:     valid,
		DaysRemaining: l.DaysRemaining(now),
		Expired:       !valid,
	}, nil
}

// Deactivate flips is_active off. Repeating it on an already inactive
// license succeeds; an unknown id is ErrLicenseNotFound.
func (s *LicenseService) Deactivate(ctx context.Context, licenseID string) error {
	ctx, span := s.tracer.Start(ctx, "license.deactivate")
	defer span.End()

	l, err := s.licenses.GetByLicenseID(ctx, licenseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrLicenseNotFound
		}
		return fmt.Errorf("lookup license: %w", err)
	}

	l.IsActive = false
	l.UpdatedAt = s.now()
	if err := s.licenses.Update(ctx, l); err != nil {
		return fmt.Errorf("deactivate license: %w", err)
	}

	s.log.Info("license deactivated", slog.String("license_id", licenseID))
	return nil
}
