package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/id-verify/internal/account"
	"github.com/example/id-verify/internal/capture"
	"github.com/example/id-verify/internal/facematch"
	"github.com/example/id-verify/internal/logging"
	"github.com/example/id-verify/internal/ocr"
	"github.com/example/id-verify/internal/repository"
	"github.com/example/id-verify/internal/session"
)

var (
	frontImage  = capture.Image{Data: []byte("front"), MIME: "image/jpeg"}
	backImage   = capture.Image{Data: []byte("back"), MIME: "image/jpeg"}
	selfieImage = capture.Image{Data: []byte("selfie"), MIME: "image/jpeg"}

	completeFrontTokens = []ocr.Token{
		{Text: "ROYAUME DU MAROC"},
		{Text: "KARIM"},
		{Text: "ALAOUI"},
		{Text: "06.03.1990"},
		{Text: "06.03.2030"},
		{Text: "AB123456"},
		{Text: "à RABAT"},
	}
	completeBackTokens = []ocr.Token{
		{Text: "Fils de MOHAMED"},
		{Text: "et de FATIMA"},
		{Text: "Adresse 12 RUE HASSAN"},
		{Text: "123/2024"},
		{Text: "Sexe M"},
	}
)

type stubOCR struct {
	tokensBySide map[string][]ocr.Token
	err          error
	calls        int
}

func (s *stubOCR) ExtractText(ctx context.Context, image capture.Image) ([]ocr.Token, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.tokensBySide[string(image.Data)], nil
}

type stubFaces struct {
	match bool
	err   error
	calls int
}

func (s *stubFaces) CompareFaces(ctx context.Context, reference, live capture.Image) (*facematch.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &facematch.Result{Match: s.match}, nil
}

type stubAccounts struct {
	requests []*account.CreateRequest
	err      error
}

func (s *stubAccounts) CreateAccount(ctx context.Context, req *account.CreateRequest) error {
	s.requests = append(s.requests, req)
	return s.err
}

type stubRepo struct {
	attempts []*repository.VerificationAttempt
	saveErr  error
}

func (s *stubRepo) SaveAttempt(ctx context.Context, attempt *repository.VerificationAttempt) error {
	s.attempts = append(s.attempts, attempt)
	return s.saveErr
}

func (s *stubRepo) AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error) {
	return &repository.MetricsAggregation{}, nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	sessions *session.Manager
	ocr      *stubOCR
	faces    *stubFaces
	accounts *stubAccounts
	repo     *stubRepo
}

func newFixture(cache TokenCache) *pipelineFixture {
	f := &pipelineFixture{
		sessions: session.NewManager(),
		ocr: &stubOCR{tokensBySide: map[string][]ocr.Token{
			"front": completeFrontTokens,
			"back":  completeBackTokens,
		}},
		faces:    &stubFaces{match: true},
		accounts: &stubAccounts{},
		repo:     &stubRepo{},
	}
	f.pipeline = NewPipeline(f.sessions, f.ocr, f.faces, f.accounts, f.repo, cache, zap.NewNop())
	return f
}

func startRegistration(t *testing.T, f *pipelineFixture) *session.Session {
	t.Helper()
	s, err := f.pipeline.StartSession(session.FlowRegistration, frontImage, backImage)
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if _, err := f.pipeline.CaptureSelfie(s.ID, selfieImage); err != nil {
		t.Fatalf("failed to capture selfie: %v", err)
	}
	return s
}

func reachReviewing(t *testing.T, f *pipelineFixture) *session.Session {
	t.Helper()
	s := startRegistration(t, f)
	if _, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID); err != nil {
		t.Fatalf("failed to confirm identity: %v", err)
	}
	return s
}

func TestStartSessionRequiresCardImages(t *testing.T) {
	f := newFixture(nil)

	if _, err := f.pipeline.StartSession(session.FlowRegistration, capture.Image{}, backImage); !errors.Is(err, session.ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	if _, err := f.pipeline.StartSession(session.FlowRegistration, frontImage, capture.Image{}); !errors.Is(err, session.ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", err)
	}
	// Login re-verification only needs the photo side.
	if _, err := f.pipeline.StartSession(session.FlowLoginReverify, frontImage, capture.Image{}); err != nil {
		t.Fatalf("expected login session to start, got %v", err)
	}
}

func TestCaptureSelfieAdvancesToFaceMatchGate(t *testing.T) {
	f := newFixture(nil)
	s := startRegistration(t, f)

	if s.Phase != session.PhaseAwaitingFaceMatch {
		t.Fatalf("expected awaiting_face_match, got %s", s.Phase)
	}
	if !s.Captures.Selfie.Present() {
		t.Fatal("expected selfie to be stored")
	}
}

func TestRetakeSelfieKeepsCardImages(t *testing.T) {
	f := newFixture(nil)
	s := startRegistration(t, f)

	if _, err := f.pipeline.RetakeSelfie(s.ID); err != nil {
		t.Fatalf("retake failed: %v", err)
	}
	if s.Phase != session.PhaseAwaitingSelfie {
		t.Fatalf("expected awaiting_selfie, got %s", s.Phase)
	}
	if s.Captures.Selfie.Present() {
		t.Fatal("expected selfie to be cleared")
	}
	if !s.Captures.Front.Present() || !s.Captures.Back.Present() {
		t.Fatal("expected card images to survive a retake")
	}
}

func TestFaceMismatchForcesRecapture(t *testing.T) {
	f := newFixture(nil)
	f.faces.match = false
	s := startRegistration(t, f)

	_, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID)
	if !errors.Is(err, session.ErrFaceMismatch) {
		t.Fatalf("expected ErrFaceMismatch, got %v", err)
	}
	if s.Phase != session.PhaseAwaitingSelfie {
		t.Fatalf("expected awaiting_selfie, got %s", s.Phase)
	}
	if s.Captures.Selfie.Present() {
		t.Fatal("expected selfie to be cleared after mismatch")
	}
	if f.ocr.calls != 0 {
		t.Fatalf("no extraction may run after a mismatch, got %d calls", f.ocr.calls)
	}
	if len(f.repo.attempts) != 1 || f.repo.attempts[0].FaceMatched {
		t.Fatalf("expected one non-matched attempt row, got %+v", f.repo.attempts)
	}
}

func TestFaceGateTransportErrorIsRetryableInPlace(t *testing.T) {
	f := newFixture(nil)
	f.faces.err = errors.New("connection refused")
	s := startRegistration(t, f)

	_, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if s.Phase != session.PhaseAwaitingFaceMatch {
		t.Fatalf("expected phase unchanged, got %s", s.Phase)
	}
	if !s.Captures.Selfie.Present() {
		t.Fatal("expected selfie to be kept for a retry")
	}

	// The same state can be re-triggered once the gateway recovers.
	f.faces.err = nil
	if _, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestLoginMatchCompletesWithoutExtraction(t *testing.T) {
	f := newFixture(nil)
	s, err := f.pipeline.StartSession(session.FlowLoginReverify, frontImage, capture.Image{})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if _, err := f.pipeline.CaptureSelfie(s.ID, selfieImage); err != nil {
		t.Fatalf("failed to capture selfie: %v", err)
	}

	outcome, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !outcome.Completed {
		t.Fatal("expected login flow to complete at the gate")
	}
	if f.ocr.calls != 0 {
		t.Fatalf("login flows must not extract, got %d OCR calls", f.ocr.calls)
	}
	if f.sessions.Len() != 0 {
		t.Fatal("expected session to be discarded")
	}
}

func TestRegistrationMatchReachesReviewing(t *testing.T) {
	f := newFixture(nil)
	s := startRegistration(t, f)

	outcome, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if outcome.Phase != session.PhaseReviewing || s.Phase != session.PhaseReviewing {
		t.Fatalf("expected reviewing, got %s", s.Phase)
	}
	if f.ocr.calls != 2 {
		t.Fatalf("expected one OCR call per side, got %d", f.ocr.calls)
	}
	if outcome.Record.FirstName != "KARIM" || outcome.Record.CivilStatusNumber != "123/2024" {
		t.Fatalf("unexpected record: %+v", outcome.Record)
	}
	if len(outcome.MissingFields) != 0 {
		t.Fatalf("expected no missing fields, got %v", outcome.MissingFields)
	}
}

func TestExtractionFailureReturnsToGate(t *testing.T) {
	f := newFixture(nil)
	f.ocr.err = errors.New("ocr unavailable")
	s := startRegistration(t, f)

	_, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if s.Phase != session.PhaseAwaitingFaceMatch {
		t.Fatalf("expected awaiting_face_match for a user retry, got %s", s.Phase)
	}
	if s.Extracted != nil {
		t.Fatal("no partial classification may be kept")
	}
}

func TestCachedTokensSkipOCRGateway(t *testing.T) {
	cache := newSeededCache(map[string][]ocr.Token{
		"ocr:" + imageHash(frontImage): completeFrontTokens,
		"ocr:" + imageHash(backImage):  completeBackTokens,
	})
	f := newFixture(cache)
	s := startRegistration(t, f)

	if _, err := f.pipeline.ConfirmIdentity(context.Background(), s.ID); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.ocr.calls != 0 {
		t.Fatalf("expected cache hits to skip the gateway, got %d calls", f.ocr.calls)
	}
	if s.Extracted == nil || s.Extracted.Record.FirstName != "KARIM" {
		t.Fatalf("unexpected extraction: %+v", s.Extracted)
	}
}

func TestSaveReviewBlocksUntilFieldsResolved(t *testing.T) {
	f := newFixture(nil)
	f.ocr.tokensBySide["back"] = nil // back side unreadable: five fields missing
	s := reachReviewing(t, f)

	_, err := f.pipeline.SaveReview(s.ID, map[string]string{"father_name": "MOHAMED"})
	var missingErr *session.MissingFieldsError
	if !errors.As(err, &missingErr) {
		t.Fatalf("expected MissingFieldsError, got %v", err)
	}
	if s.Phase != session.PhaseReviewing {
		t.Fatalf("expected to stay in reviewing, got %s", s.Phase)
	}

	rec, err := f.pipeline.SaveReview(s.ID, map[string]string{
		"mother_name":         "FATIMA",
		"address":             "12 RUE HASSAN",
		"civil_status_number": "123/2024",
		"gender":              "M",
	})
	if err != nil {
		t.Fatalf("expected save to succeed after edits, got %v", err)
	}
	if rec.FatherName != "MOHAMED" || rec.Gender != "M" {
		t.Fatalf("unexpected merged record: %+v", rec)
	}
}

func TestSubmitWithoutPasswordIsContractViolation(t *testing.T) {
	f := newFixture(nil)
	s := reachReviewing(t, f)

	err := f.pipeline.Submit(context.Background(), s.ID, Credentials{Email: "k@example.com"})
	if !errors.Is(err, session.ErrContractViolation) {
		t.Fatalf("expected ErrContractViolation, got %v", err)
	}
	if len(f.accounts.requests) != 0 {
		t.Fatal("contract violation must abort before any network call")
	}
	if f.sessions.Len() != 0 {
		t.Fatal("contract violation ends the flow")
	}
}

func TestSubmitUsesEditedRecord(t *testing.T) {
	f := newFixture(nil)
	s := reachReviewing(t, f)

	if _, err := f.pipeline.SaveReview(s.ID, map[string]string{"first_name": "YASSINE"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	creds := Credentials{Email: "k@example.com", PhoneNumber: "+212600000000", Password: "secret"}
	if err := f.pipeline.Submit(context.Background(), s.ID, creds); err != nil {
		t.Fatalf("expected submit to succeed, got %v", err)
	}

	if len(f.accounts.requests) != 1 {
		t.Fatalf("expected one account request, got %d", len(f.accounts.requests))
	}
	req := f.accounts.requests[0]
	if req.FirstName != "YASSINE" {
		t.Fatalf("expected edited first name, got %s", req.FirstName)
	}
	if req.CardNumber != "AB123456" || req.BirthDate != "06.03.1990" || req.IDExpirationDate != "06.03.2030" {
		t.Fatalf("unexpected payload mapping: %+v", req)
	}
	if f.sessions.Len() != 0 {
		t.Fatal("expected session to be discarded after completion")
	}
}

func TestSubmitAccountFailureReturnsToReviewing(t *testing.T) {
	f := newFixture(nil)
	f.accounts.err = errors.New("account service down")
	s := reachReviewing(t, f)

	err := f.pipeline.Submit(context.Background(), s.ID, Credentials{Password: "secret"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if s.Phase != session.PhaseReviewing {
		t.Fatalf("expected reviewing for a resubmit, got %s", s.Phase)
	}
}

func TestAbandonDiscardsEverything(t *testing.T) {
	f := newFixture(nil)
	s := reachReviewing(t, f)

	f.pipeline.Abandon(s.ID)

	if f.sessions.Len() != 0 {
		t.Fatal("expected session to be removed")
	}
	if s.Captures.Front.Present() || s.Captures.Selfie.Present() {
		t.Fatal("expected all images to be dropped")
	}
	if s.Extracted != nil {
		t.Fatal("expected derived data to be dropped")
	}
}

// seededCache is a TokenCache stub preloaded with token lists.
type seededCache struct {
	data map[string][]ocr.Token
}

func newSeededCache(tokens map[string][]ocr.Token) *seededCache {
	return &seededCache{data: tokens}
}

func (c *seededCache) PutTokens(ctx context.Context, key string, tokens []ocr.Token, ttl time.Duration) error {
	c.data[key] = tokens
	return nil
}

func (c *seededCache) GetTokens(ctx context.Context, key string) ([]ocr.Token, bool, error) {
	tokens, ok := c.data[key]
	return tokens, ok, nil
}
