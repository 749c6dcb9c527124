package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serkayon/biolic/internal/mailer"
	"github.com/serkayon/biolic/internal/otp"
	"github.com/serkayon/biolic/internal/store"
)

type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) Send(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = code
	return nil
}

func (s *captureSender) codeFor(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type otpFixture struct {
	svc    *OTPService
	repo   *otp.MemoryRepository
	sender *captureSender
	queue  *mailer.Queue
	now    time.Time
}

func newOTPFixture(t *testing.T) *otpFixture {
	t.Helper()

	sender := newCaptureSender()
	queue := mailer.NewQueue(sender, discardLogger(), 16, time.Second)
	queue.Start()
	t.Cleanup(queue.Stop)

	repo := otp.NewMemoryRepository()
	svc := NewOTPService(repo, queue, discardLogger(), 6, 5*time.Minute, 5)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &otpFixture{svc: svc, repo: repo, sender: sender, queue: queue, now: now}
}

// sendAndCapture issues a code and waits for the queue to deliver it
func (f *otpFixture) sendAndCapture(t *testing.T, email string) string {
	t.Helper()

	_, err := f.svc.Send(context.Background(), email)
	require.NoError(t, err)

	var code string
	require.Eventually(t, func() bool {
		code = f.sender.codeFor(email)
		return code != ""
	}, time.Second, 5*time.Millisecond, "code never delivered")
	return code
}

func TestSendNormalizesAndDelivers(t *testing.T) {
	f := newOTPFixture(t)

	email, err := f.svc.Send(context.Background(), "  User@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", email)

	require.Eventually(t, func() bool {
		return f.sender.codeFor("user@example.com") != ""
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, f.sender.codeFor("user@example.com"), 6)

	record, err := f.repo.GetPendingByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(5*time.Minute), record.ExpiresAt)
	assert.Equal(t, f.sender.codeFor("user@example.com"), record.Code)
}

func TestSendRejectsBadEmail(t *testing.T) {
	f := newOTPFixture(t)

	for _, email := range []string{"", "   ", "no-at-sign.com", "no-dot@com"} {
		_, err := f.svc.Send(context.Background(), email)
		assert.ErrorIs(t, err, ErrInvalidEmail, "email %q", email)
	}
}

func TestSendWhilePendingConflicts(t *testing.T) {
	f := newOTPFixture(t)
	f.sendAndCapture(t, "user@example.com")

	_, err := f.svc.Send(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, ErrOTPAlreadyPending)
}

func TestSendAfterExpiryIssuesFresh(t *testing.T) {
	f := newOTPFixture(t)
	first := f.sendAndCapture(t, "user@example.com")

	f.svc.now = func() time.Time { return f.now.Add(6 * time.Minute) }

	_, err := f.svc.Send(context.Background(), "user@example.com")
	require.NoError(t, err)

	record, err := f.repo.GetPendingByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(6*time.Minute).Add(5*time.Minute), record.ExpiresAt)
	// old code is gone with its row
	assert.NotEqual(t, first, record.Code, "expired code survived reissue")
}

func TestVerifyCodeSuccessIsTerminal(t *testing.T) {
	f := newOTPFixture(t)
	code := f.sendAndCapture(t, "user@example.com")

	require.NoError(t, f.svc.VerifyCode(context.Background(), "User@Example.com ", code))

	// the verified row is invisible: a second verify finds nothing
	err := f.svc.VerifyCode(context.Background(), "user@example.com", code)
	assert.ErrorIs(t, err, ErrNoOTPFound)
}

func TestVerifyCodeNoPending(t *testing.T) {
	f := newOTPFixture(t)

	err := f.svc.VerifyCode(context.Background(), "nobody@example.com", "123456")
	assert.ErrorIs(t, err, ErrNoOTPFound)
}

func TestVerifyCodeAttemptsCountdown(t *testing.T) {
	f := newOTPFixture(t)
	code := f.sendAndCapture(t, "user@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for _, want := range []int{4, 3, 2, 1} {
		err := f.svc.VerifyCode(context.Background(), "user@example.com", wrong)
		var invalid *InvalidCodeError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, want, invalid.AttemptsLeft)
	}

	// fifth wrong guess burns the code and deletes the row
	err := f.svc.VerifyCode(context.Background(), "user@example.com", wrong)
	assert.ErrorIs(t, err, ErrOTPAttemptsExceeded)

	err = f.svc.VerifyCode(context.Background(), "user@example.com", code)
	assert.ErrorIs(t, err, ErrNoOTPFound)
}

func TestVerifyCodeRightCodeAfterWrongGuesses(t *testing.T) {
	f := newOTPFixture(t)
	code := f.sendAndCapture(t, "user@example.com")

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 4; i++ {
		err := f.svc.VerifyCode(context.Background(), "user@example.com", wrong)
		var invalid *InvalidCodeError
		require.ErrorAs(t, err, &invalid)
	}

	// attempts remain, so the right code still verifies
	assert.NoError(t, f.svc.VerifyCode(context.Background(), "user@example.com", code))
}

func TestVerifyCodeExpiredDeletesRow(t *testing.T) {
	f := newOTPFixture(t)
	code := f.sendAndCapture(t, "user@example.com")

	f.svc.now = func() time.Time { return f.now.Add(5*time.Minute + time.Second) }

	err := f.svc.VerifyCode(context.Background(), "user@example.com", code)
	assert.ErrorIs(t, err, ErrOTPExpired)

	// the row went with it, so the next attempt reports no otp
	err = f.svc.VerifyCode(context.Background(), "user@example.com", code)
	assert.ErrorIs(t, err, ErrNoOTPFound)
}

func TestVerifyCodeRequiresInput(t *testing.T) {
	f := newOTPFixture(t)

	assert.ErrorIs(t, f.svc.VerifyCode(context.Background(), "", "123456"), ErrInvalidEmail)
	assert.ErrorIs(t, f.svc.VerifyCode(context.Background(), "user@example.com", "  "), ErrInvalidEmail)
}

func TestVerifyThenResendStartsClean(t *testing.T) {
	f := newOTPFixture(t)
	code := f.sendAndCapture(t, "user@example.com")
	require.NoError(t, f.svc.VerifyCode(context.Background(), "user@example.com", code))

	// the consumed row occupies the slot but never blocks a new send
	_, err := f.svc.Send(context.Background(), "user@example.com")
	require.NoError(t, err)

	record, err := f.repo.GetPendingByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.False(t, record.IsVerified)
}

// conflictOTPRepo simulates a concurrent send winning the email slot
// between the pending check and the insert.
type conflictOTPRepo struct{}

func (r *conflictOTPRepo) InTx(ctx context.Context, fn func(otp.Repository) error) error {
	return fn(r)
}

func (r *conflictOTPRepo) GetPendingByEmail(ctx context.Context, email string) (*otp.OTP, error) {
	return nil, store.ErrNotFound
}

func (r *conflictOTPRepo) Create(ctx context.Context, o *otp.OTP) error {
	return store.ErrConflict
}

func (r *conflictOTPRepo) Update(ctx context.Context, o *otp.OTP) error {
	return store.ErrNotFound
}

func (r *conflictOTPRepo) DeleteByEmail(ctx context.Context, email string) error {
	return nil
}

func (r *conflictOTPRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}

func TestSendLostSlotRaceReportsPending(t *testing.T) {
	sender := newCaptureSender()
	queue := mailer.NewQueue(sender, discardLogger(), 16, time.Second)
	queue.Start()
	t.Cleanup(queue.Stop)

	svc := NewOTPService(&conflictOTPRepo{}, queue, discardLogger(), 6, 5*time.Minute, 5)

	_, err := svc.Send(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, ErrOTPAlreadyPending)
	assert.NotErrorIs(t, err, store.ErrConflict)

	// nothing was committed, so nothing may be enqueued
	assert.Empty(t, sender.codeFor("user@example.com"))
}
