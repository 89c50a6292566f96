package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/infrastructure/repositories"
	"github.com/you/otpgate/internal/mocks"
)

const testCode = "4821"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type otpTestDeps struct {
	store      *repositories.ChallengeMemoryStore
	dispatcher *mocks.MockDispatcher
	profiles   *mocks.MockProfileService
	audit      *mocks.MockAuditLogger
	clock      *fakeClock
}

// createOTPServiceForTest creates an OTPService with TTL 5m, 5 attempts and a 30s cooldown
func createOTPServiceForTest(t *testing.T) (*OTPServiceImpl, *otpTestDeps) {
	t.Helper()

	clock := newFakeClock()
	deps := &otpTestDeps{
		store:      repositories.NewChallengeMemoryStore(5 * time.Minute).WithClock(clock.Now),
		dispatcher: mocks.NewMockDispatcher(),
		profiles:   mocks.NewMockProfileService(),
		audit:      mocks.NewMockAuditLogger(),
		clock:      clock,
	}

	config := OTPConfig{
		TTL:            5 * time.Minute,
		MaxAttempts:    5,
		ResendCooldown: 30 * time.Second,
	}

	svc := NewOTPService(deps.store, mocks.NewMockCodeHasher(testCode), deps.dispatcher, deps.profiles, deps.audit, config)
	svc.nowF = clock.Now
	return svc, deps
}

func testTarget() domain.PhoneTarget {
	return domain.NewPhoneTarget("user_1", "+1", "(555) 123-4567")
}

func verifyReq(requestID, code string) domain.VerifyRequest {
	return domain.VerifyRequest{Target: testTarget(), RequestID: requestID, Code: code}
}

func TestOTPServiceImpl_Send(t *testing.T) {
	tests := []struct {
		name          string
		target        domain.PhoneTarget
		setupMocks    func(*otpTestDeps)
		expectedError error
		validate      func(t *testing.T, issued *domain.IssuedChallenge, deps *otpTestDeps)
	}{
		{
			name:   "successful send",
			target: testTarget(),
			validate: func(t *testing.T, issued *domain.IssuedChallenge, deps *otpTestDeps) {
				if issued.RequestID == "" {
					t.Error("expected a request id")
				}
				if want := deps.clock.Now().Add(5 * time.Minute); !issued.ExpiresAt.Equal(want) {
					t.Errorf("expected expiresAt %v, got %v", want, issued.ExpiresAt)
				}
				sent := deps.dispatcher.Sent()
				if len(sent) != 1 {
					t.Fatalf("expected 1 dispatch, got %d", len(sent))
				}
				if sent[0].FullPhoneNumber != "+15551234567" {
					t.Errorf("unexpected phone %s", sent[0].FullPhoneNumber)
				}
				if sent[0].OTP != testCode {
					t.Errorf("expected code %s, got %s", testCode, sent[0].OTP)
				}
				if sent[0].RequestID != issued.RequestID {
					t.Error("dispatch payload should carry the issued request id")
				}
				if deps.store.Len() != 1 {
					t.Errorf("expected 1 stored challenge, got %d", deps.store.Len())
				}
			},
		},
		{
			name:          "invalid target",
			target:        domain.NewPhoneTarget("", "+1", "5551234567"),
			expectedError: domain.ErrInvalidPayload,
			validate: func(t *testing.T, issued *domain.IssuedChallenge, deps *otpTestDeps) {
				if len(deps.dispatcher.Sent()) != 0 {
					t.Error("nothing should be dispatched")
				}
			},
		},
		{
			name:   "phone linked to another identity",
			target: testTarget(),
			setupMocks: func(deps *otpTestDeps) {
				deps.profiles.IsPhoneLinkedElsewhereFunc = func(ctx context.Context, userID, fullPhoneNumber string) bool {
					return fullPhoneNumber == "+15551234567"
				}
			},
			expectedError: domain.ErrPhoneLinkedElsewhere,
			validate: func(t *testing.T, issued *domain.IssuedChallenge, deps *otpTestDeps) {
				if deps.store.Len() != 0 {
					t.Error("no challenge should be created")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := createOTPServiceForTest(t)
			if tt.setupMocks != nil {
				tt.setupMocks(deps)
			}

			issued, err := svc.Send(context.Background(), tt.target)

			if tt.expectedError != nil {
				if !errors.Is(err, tt.expectedError) {
					t.Fatalf("expected error %v, got %v", tt.expectedError, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.validate != nil {
				tt.validate(t, issued, deps)
			}
		})
	}
}

func TestOTPServiceImpl_Send_LinkedPhoneIsPhoneSpecific(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)
	deps.profiles.IsPhoneLinkedElsewhereFunc = func(ctx context.Context, userID, fullPhoneNumber string) bool {
		return fullPhoneNumber == "+15551234567"
	}
	ctx := context.Background()

	if _, err := svc.Send(ctx, testTarget()); !errors.Is(err, domain.ErrPhoneLinkedElsewhere) {
		t.Fatalf("expected conflict, got %v", err)
	}

	other := domain.NewPhoneTarget("user_1", "+1", "5559876543")
	if _, err := svc.Send(ctx, other); err != nil {
		t.Fatalf("send for a different phone should succeed, got %v", err)
	}
}

func TestOTPServiceImpl_Send_Cooldown(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, testTarget()); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	deps.clock.Advance(10 * time.Second)
	_, err := svc.Send(ctx, testTarget())
	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfter != 20*time.Second {
		t.Errorf("expected retry after 20s, got %v", rateErr.RetryAfter)
	}

	deps.clock.Advance(20 * time.Second)
	if _, err := svc.Send(ctx, testTarget()); err != nil {
		t.Fatalf("send after cooldown should succeed, got %v", err)
	}
	if n := len(deps.dispatcher.Sent()); n != 2 {
		t.Errorf("expected 2 dispatches, got %d", n)
	}
}

func TestOTPServiceImpl_Send_DispatchFailureRollsBack(t *testing.T) {
	tests := []struct {
		name     string
		sendErr  error
		wantKind domain.DispatchErrorKind
	}{
		{
			name:     "timeout",
			sendErr:  &domain.DispatchError{Kind: domain.DispatchTimeout, Err: context.DeadlineExceeded},
			wantKind: domain.DispatchTimeout,
		},
		{
			name:     "upstream rate limited",
			sendErr:  domain.NewRejectedDispatch(429, "too many"),
			wantKind: domain.DispatchRejected,
		},
		{
			name:     "untyped error",
			sendErr:  errors.New("boom"),
			wantKind: domain.DispatchTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := createOTPServiceForTest(t)
			deps.dispatcher.SendFunc = func(ctx context.Context, payload domain.DispatchPayload) error {
				return tt.sendErr
			}
			ctx := context.Background()

			_, err := svc.Send(ctx, testTarget())
			var dispatchErr *domain.DispatchError
			if !errors.As(err, &dispatchErr) {
				t.Fatalf("expected DispatchError, got %v", err)
			}
			if dispatchErr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, dispatchErr.Kind)
			}
			if deps.store.Len() != 0 {
				t.Error("challenge should be rolled back")
			}

			requestID := deps.dispatcher.Sent()[0].RequestID
			if _, err := svc.Verify(ctx, verifyReq(requestID, testCode)); !errors.Is(err, domain.ErrOTPNotFound) {
				t.Errorf("expected not found after rollback, got %v", err)
			}

			// A failed send does not start the cooldown
			deps.dispatcher.SendFunc = nil
			if _, err := svc.Send(ctx, testTarget()); err != nil {
				t.Errorf("retry after failed dispatch should succeed, got %v", err)
			}
		})
	}
}

func TestOTPServiceImpl_Verify_Success(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)
	ctx := context.Background()

	var persisted []domain.VerifiedProfile
	deps.profiles.PersistVerifiedProfileFunc = func(ctx context.Context, profile domain.VerifiedProfile) domain.Persistence {
		persisted = append(persisted, profile)
		return domain.Persistence{Persisted: true}
	}

	issued, err := svc.Send(ctx, testTarget())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	email := "ada@example.com"
	req := verifyReq(issued.RequestID, " 4-8-2-1 ")
	req.Contact.Email = &email

	result, err := svc.Verify(ctx, req)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if result.UserID != "user_1" || result.FullPhoneNumber != "+15551234567" {
		t.Errorf("unexpected result %+v", result)
	}
	if !result.Persistence.Persisted {
		t.Error("expected persisted profile")
	}
	if len(persisted) != 1 {
		t.Fatalf("expected exactly one profile write, got %d", len(persisted))
	}
	if persisted[0].FullPhoneNumber != "+15551234567" || persisted[0].Contact.Email == nil || *persisted[0].Contact.Email != email {
		t.Errorf("unexpected persisted profile %+v", persisted[0])
	}

	// Replay
	if _, err := svc.Verify(ctx, req); !errors.Is(err, domain.ErrOTPNotFound) {
		t.Errorf("expected replay to be not found, got %v", err)
	}
}

func TestOTPServiceImpl_Verify_PersistenceFailureDoesNotFail(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)
	ctx := context.Background()
	deps.profiles.PersistVerifiedProfileFunc = func(ctx context.Context, profile domain.VerifiedProfile) domain.Persistence {
		return domain.Persistence{Persisted: false, Reason: ReasonStoreFailed}
	}

	issued, err := svc.Send(ctx, testTarget())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	result, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode))
	if err != nil {
		t.Fatalf("verification should succeed, got %v", err)
	}
	if result.Persistence.Persisted || result.Persistence.Reason != ReasonStoreFailed {
		t.Errorf("unexpected persistence %+v", result.Persistence)
	}
}

func TestOTPServiceImpl_Verify_AttemptBudget(t *testing.T) {
	svc, _ := createOTPServiceForTest(t)
	ctx := context.Background()

	issued, err := svc.Send(ctx, testTarget())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	for i := 1; i <= 4; i++ {
		if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, "0000")); !errors.Is(err, domain.ErrOTPInvalid) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i, err)
		}
	}
	if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, "0000")); !errors.Is(err, domain.ErrOTPMaxAttempts) {
		t.Fatalf("attempt 5: expected attempts exceeded, got %v", err)
	}
	if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode)); !errors.Is(err, domain.ErrOTPNotFound) {
		t.Fatalf("attempt 6: expected not found, got %v", err)
	}
}

func TestOTPServiceImpl_Verify_Expired(t *testing.T) {
	tests := []struct {
		name  string
		sweep bool
	}{
		{name: "expired on verify"},
		{name: "expired after sweep", sweep: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, deps := createOTPServiceForTest(t)
			ctx := context.Background()

			issued, err := svc.Send(ctx, testTarget())
			if err != nil {
				t.Fatalf("send failed: %v", err)
			}
			deps.clock.Advance(5 * time.Minute)

			if tt.sweep {
				n, err := svc.SweepExpired(ctx)
				if err != nil {
					t.Fatalf("sweep failed: %v", err)
				}
				if n != 1 {
					t.Errorf("expected 1 swept challenge, got %d", n)
				}
			}

			if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode)); !errors.Is(err, domain.ErrOTPExpired) {
				t.Fatalf("expected expired, got %v", err)
			}
			// The tombstone keeps reporting expiry until a new send
			if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode)); !errors.Is(err, domain.ErrOTPExpired) {
				t.Fatalf("expected expired on retry, got %v", err)
			}

			next, err := svc.Send(ctx, testTarget())
			if err != nil {
				t.Fatalf("resend failed: %v", err)
			}
			if _, err := svc.Verify(ctx, verifyReq(next.RequestID, testCode)); err != nil {
				t.Fatalf("fresh challenge should verify, got %v", err)
			}
		})
	}
}

func TestOTPServiceImpl_Verify_LatestChallengeWins(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)
	ctx := context.Background()

	first, err := svc.Send(ctx, testTarget())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	deps.clock.Advance(31 * time.Second)
	if _, err := svc.Send(ctx, testTarget()); err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	// An old request id still resolves to the latest live challenge
	if _, err := svc.Verify(ctx, verifyReq(first.RequestID, testCode)); err != nil {
		t.Fatalf("expected latest challenge to verify, got %v", err)
	}
}

func TestOTPServiceImpl_Verify_ForeignRequestIgnored(t *testing.T) {
	svc, _ := createOTPServiceForTest(t)
	ctx := context.Background()

	other := domain.NewPhoneTarget("user_2", "+44", "7700900123")
	issued, err := svc.Send(ctx, other)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode)); !errors.Is(err, domain.ErrOTPNotFound) {
		t.Fatalf("expected not found for a foreign request id, got %v", err)
	}
}

func TestOTPServiceImpl_Verify_InvalidPayload(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)

	tests := []struct {
		name string
		req  domain.VerifyRequest
	}{
		{name: "short code", req: verifyReq("r1", "12")},
		{name: "non digit code", req: verifyReq("r1", "abcd")},
		{name: "missing user", req: domain.VerifyRequest{Target: domain.NewPhoneTarget("", "+1", "5551234567"), Code: testCode}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Verify(context.Background(), tt.req); !errors.Is(err, domain.ErrInvalidPayload) {
				t.Errorf("expected invalid payload, got %v", err)
			}
		})
	}
	if deps.store.Len() != 0 {
		t.Error("validation must not touch the store")
	}
}

func TestOTPServiceImpl_Verify_ConcurrentSingleUse(t *testing.T) {
	svc, _ := createOTPServiceForTest(t)
	ctx := context.Background()

	issued, err := svc.Send(ctx, testTarget())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful verification, got %d", successes)
	}
}

func TestOTPServiceImpl_AuditTrail(t *testing.T) {
	svc, deps := createOTPServiceForTest(t)
	ctx := context.Background()

	issued, err := svc.Send(ctx, testTarget())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	_, _ = svc.Verify(ctx, verifyReq(issued.RequestID, "0000"))
	if _, err := svc.Verify(ctx, verifyReq(issued.RequestID, testCode)); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	want := []domain.AuditEventType{domain.OTPSentEvent, domain.OTPVerifyFailureEvent, domain.OTPVerifiedEvent}
	got := deps.audit.Events()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
