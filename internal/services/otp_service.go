package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/serkayon/biolic/internal/mailer"
	"github.com/serkayon/biolic/internal/otp"
	"github.com/serkayon/biolic/internal/store"
)

var (
	// ErrInvalidEmail means the submitted address fails basic validation
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrOTPAlreadyPending means an unexpired code is still outstanding
	ErrOTPAlreadyPending = errors.New("otp already sent")

	// ErrNoOTPFound means there is no pending code for the email
	ErrNoOTPFound = errors.New("no otp found")

	// ErrOTPExpired means the code's window closed; the row is gone
	ErrOTPExpired = errors.New("otp expired")

	// ErrOTPAttemptsExceeded means the fifth wrong guess burned the code
	ErrOTPAttemptsExceeded = errors.New("too many attempts")
)

// InvalidCodeError is a wrong guess that still leaves attempts on the table
type InvalidCodeError struct {
	AttemptsLeft int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid otp, %d attempts left", e.AttemptsLeft)
}

// OTPService implements the passcode state machine. Each email holds at
// most one outstanding code; verification is bounded by attempts and a
// five minute window.
type OTPService struct {
	otps  otp.Repository
	queue *mailer.Queue
	log   *slog.Logger

	codeLength  int
	ttl         time.Duration
	maxAttempts int

	now func() time.Time
}

// NewOTPService wires the passcode ledger with its delivery queue
func NewOTPService(otps otp.Repository, queue *mailer.Queue, log *slog.Logger, codeLength int, ttl time.Duration, maxAttempts int) *OTPService {
	return &OTPService{
		otps:        otps,
		queue:       queue,
		log:         log,
		codeLength:  codeLength,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *OTPService) tracer() trace.Tracer {
	return otel.Tracer("services/otp")
}

// Send issues a fresh code for an email. An unexpired pending code is a
// conflict; expired or consumed rows are purged first. The delivery job
// is enqueued only after the row is committed, so a crash between the
// two loses the mail, never the state.
func (s *OTPService) Send(ctx context.Context, email string) (string, error) {
	ctx, span := s.tracer().Start(ctx, "otp.send")
	defer span.End()

	email = otp.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}

	code, err := otp.NewCode(s.codeLength)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	now := s.now()
	err = s.otps.InTx(ctx, func(tr otp.Repository) error {
		existing, err := tr.GetPendingByEmail(ctx, email)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if existing != nil && !existing.IsExpired(now) {
			return ErrOTPAlreadyPending
		}

		// purge whatever occupies the slot: expired pending or verified
		if err := tr.DeleteByEmail(ctx, email); err != nil {
			return err
		}

		return tr.Create(ctx, &otp.OTP{
			ID:        uuid.NewString(),
			Email:     email,
			Code:      code,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		})
	})
	if err != nil {
		if errors.Is(err, ErrOTPAlreadyPending) {
			return "", ErrOTPAlreadyPending
		}
		if errors.Is(err, store.ErrConflict) {
			// concurrent send won the slot
			return "", ErrOTPAlreadyPending
		}
		return "", fmt.Errorf("store otp: %w", err)
	}

	// row is committed; delivery is fire-and-forget from here
	if err := s.queue.Enqueue(email, code); err != nil {
		s.log.Error("otp delivery enqueue failed",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
	} else {
		s.log.Info("otp queued for delivery", slog.String("email", email))
	}

	return email, nil
}

// VerifyCode checks a submitted code against the pending row. Expiry
// deletes the row (the next Send starts clean); the fifth wrong guess
// deletes it too; a match flips it to verified, which consumes it.
func (s *OTPService) VerifyCode(ctx context.Context, email, code string) error {
	ctx, span := s.tracer().Start(ctx, "otp.verify")
	defer span.End()

	email = otp.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return ErrInvalidEmail
	}

	// outcome is decided inside the transaction but returned after it:
	// the deletes and attempt increments must commit even when the
	// verification itself fails.
	var outcome error
	now := s.now()
	err := s.otps.InTx(ctx, func(tr otp.Repository) error {
		record, err := tr.GetPendingByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				outcome = ErrNoOTPFound
				return nil
			}
			return err
		}

		if record.IsExpired(now) {
			outcome = ErrOTPExpired
			return tr.DeleteByID(ctx, record.ID)
		}

		if record.Code != code {
			record.FailedAttempts++
			if record.FailedAttempts >= s.maxAttempts {
				s.log.Warn("otp burned by attempts", slog.String("email", email))
				outcome = ErrOTPAttemptsExceeded
				return tr.DeleteByID(ctx, record.ID)
			}
			outcome = &InvalidCodeError{AttemptsLeft: s.maxAttempts - record.FailedAttempts}
			return tr.Update(ctx, record)
		}

		record.IsVerified = true
		return tr.Update(ctx, record)
	})
	if err != nil {
		return fmt.Errorf("verify otp: %w", err)
	}
	if outcome == nil {
		s.log.Info("otp verified", slog.String("email", email))
	}
	return outcome
}

// validateEmail applies the same minimal shape check the clients rely on
func validateEmail(email string) error {
	if email == "" || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return ErrInvalidEmail
	}
	return nil
}
