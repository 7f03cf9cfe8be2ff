// Package usecase drives the identity-verification pipeline: capture, the
// face-match gate, OCR extraction, classification, review and final
// submission.
package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/id-verify/internal/account"
	"github.com/example/id-verify/internal/capture"
	"github.com/example/id-verify/internal/classifier"
	"github.com/example/id-verify/internal/facematch"
	"github.com/example/id-verify/internal/logging"
	"github.com/example/id-verify/internal/ocr"
	"github.com/example/id-verify/internal/repository"
	"github.com/example/id-verify/internal/session"
)

// AttemptRepository defines the persistence operations needed by the
// pipeline.
type AttemptRepository interface {
	SaveAttempt(ctx context.Context, attempt *repository.VerificationAttempt) error
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Pipeline orchestrates verification sessions against the external
// collaborators. All session state lives in the manager; the pipeline itself
// is stateless and safe to share.
type Pipeline struct {
	sessions *session.Manager
	ocr      ocr.Client
	faces    facematch.Client
	accounts account.Creator
	repo     AttemptRepository
	cache    TokenCache
	logger   *zap.Logger
	cacheTTL time.Duration
}

// ConfirmOutcome reports the result of the face-match gate and, for
// registration flows, the classification that follows it.
type ConfirmOutcome struct {
	Phase         session.Phase
	Completed     bool
	Record        *classifier.Record
	MissingFields []string
}

// NewPipeline constructs the pipeline with its collaborators injected.
func NewPipeline(sessions *session.Manager, ocrClient ocr.Client, faces facematch.Client, accounts account.Creator, repo AttemptRepository, cache TokenCache, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		sessions: sessions,
		ocr:      ocrClient,
		faces:    faces,
		accounts: accounts,
		repo:     repo,
		cache:    cache,
		logger:   logger.Named("verification_pipeline"),
		cacheTTL: 5 * time.Minute,
	}
}

// StartSession opens a new verification session around the uploaded card
// images. Registration needs both sides; login re-verification only needs
// the front (the side carrying the photo).
func (p *Pipeline) StartSession(flow session.Flow, front, back capture.Image) (*session.Session, error) {
	if !front.Present() {
		return nil, fmt.Errorf("%w: front card image is required", session.ErrCaptureUnavailable)
	}
	if flow == session.FlowRegistration && !back.Present() {
		return nil, fmt.Errorf("%w: back card image is required", session.ErrCaptureUnavailable)
	}

	s := p.sessions.Create(flow, front, back)
	p.logger.Info("session started",
		zap.String("session_id", s.ID),
		zap.String("flow", string(flow)))
	return s, nil
}

// CaptureSelfie stores the live capture and advances to the face-match
// gate.
func (p *Pipeline) CaptureSelfie(id string, selfie capture.Image) (*session.Session, error) {
	s, err := p.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Phase != session.PhaseAwaitingSelfie {
		return nil, fmt.Errorf("%w: phase %s", session.ErrInvalidPhase, s.Phase)
	}
	if !selfie.Present() {
		return nil, fmt.Errorf("%w: selfie frame is empty", session.ErrCaptureUnavailable)
	}

	s.Captures.Selfie = selfie
	s.Phase = session.PhaseAwaitingFaceMatch
	return s, nil
}

// RetakeSelfie discards the live capture and loops back to AwaitingSelfie
// without touching the card images.
func (p *Pipeline) RetakeSelfie(id string) (*session.Session, error) {
	s, err := p.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Phase != session.PhaseAwaitingSelfie && s.Phase != session.PhaseAwaitingFaceMatch {
		return nil, fmt.Errorf("%w: phase %s", session.ErrInvalidPhase, s.Phase)
	}

	s.Captures.ClearSelfie()
	s.Phase = session.PhaseAwaitingSelfie
	return s, nil
}

// ConfirmIdentity runs the face-match gate and, on a positive match in a
// registration flow, extraction and classification. A transport failure
// leaves the phase unchanged so the user can retry in place; a non-match is
// the hard gate: the selfie is cleared and the session returns to
// AwaitingSelfie.
func (p *Pipeline) ConfirmIdentity(ctx context.Context, id string) (*ConfirmOutcome, error) {
	s, err := p.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Phase != session.PhaseAwaitingFaceMatch {
		return nil, fmt.Errorf("%w: phase %s", session.ErrInvalidPhase, s.Phase)
	}
	if !s.Captures.CanMatchFace() {
		return nil, fmt.Errorf("%w: front image and selfie are both required", session.ErrCaptureUnavailable)
	}

	opLogger := logging.WithOperation(p.logger, "pipeline.confirm_identity", s.ID)

	result, err := p.faces.CompareFaces(ctx, s.Captures.Front, s.Captures.Selfie)
	if err != nil {
		wrapped := logging.NewOperationError("pipeline.compare_faces", s.ID, err)
		opLogger.Error("face comparison transport failure", zap.Error(wrapped))
		return nil, wrapped
	}

	p.recordAttempt(ctx, s, repository.StageFaceGate, result.Match, 0)

	if !result.Match {
		s.Captures.ClearSelfie()
		s.Phase = session.PhaseAwaitingSelfie
		opLogger.Info("face mismatch, forcing recapture")
		return nil, session.ErrFaceMismatch
	}

	s.FaceMatched = true

	if s.Flow == session.FlowLoginReverify {
		// Login flows only confirm liveness; no structured data is
		// extracted.
		s.Phase = session.PhaseCompleted
		p.sessions.Remove(s.ID)
		opLogger.Info("login re-verification completed")
		return &ConfirmOutcome{Phase: session.PhaseCompleted, Completed: true}, nil
	}

	s.Phase = session.PhaseExtracting
	result2, err := p.extractAndClassify(ctx, s)
	if err != nil {
		// Either OCR call failing is a hard error for this attempt; the
		// user retries from the gate they already passed.
		s.Phase = session.PhaseAwaitingFaceMatch
		return nil, err
	}

	s.Extracted = result2
	s.Phase = session.PhaseReviewing
	opLogger.Info("extraction classified",
		zap.Int("missing_fields", len(result2.MissingFields)))

	rec := result2.Record
	return &ConfirmOutcome{
		Phase:         session.PhaseReviewing,
		Record:        &rec,
		MissingFields: result2.MissingFields,
	}, nil
}

// extractAndClassify fans out the two OCR calls, joins both results and
// runs the classifier. This is the pipeline's only fan-out/fan-in point.
func (p *Pipeline) extractAndClassify(ctx context.Context, s *session.Session) (*classifier.Result, error) {
	if !s.Captures.CanExtract() {
		return nil, fmt.Errorf("%w: both card images are required", session.ErrCaptureUnavailable)
	}

	var frontTokens, backTokens []ocr.Token
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		frontTokens, err = p.extractSide(gctx, s.ID, s.Captures.Front)
		return err
	})
	g.Go(func() error {
		var err error
		backTokens, err = p.extractSide(gctx, s.ID, s.Captures.Back)
		return err
	})
	if err := g.Wait(); err != nil {
		wrapped := logging.NewOperationError("pipeline.extract_text", s.ID, err)
		logging.WithOperation(p.logger, "pipeline.extract_text", s.ID).
			Error("text extraction failed", zap.Error(wrapped))
		return nil, wrapped
	}

	result := classifier.Classify(tokenTexts(frontTokens), tokenTexts(backTokens))
	return &result, nil
}

// extractSide returns the token list for one card side, consulting the
// redis cache keyed by image hash before calling the gateway.
func (p *Pipeline) extractSide(ctx context.Context, sessionID string, image capture.Image) ([]ocr.Token, error) {
	key := "ocr:" + imageHash(image)
	opLogger := logging.WithOperation(p.logger, "pipeline.extract_side", sessionID)

	if p.cache != nil {
		cached, found, err := p.cache.GetTokens(ctx, key)
		if err != nil {
			opLogger.Warn("failed to read OCR cache", zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	tokens, err := p.ocr.ExtractText(ctx, image)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.PutTokens(ctx, key, tokens, p.cacheTTL); err != nil {
			opLogger.Warn("failed to cache OCR tokens", zap.Error(err))
		}
	}
	return tokens, nil
}

// SaveReview merges the user's field edits into the session and re-runs the
// required-field check over the merged record. A non-empty missing set
// blocks leaving the reviewing phase.
func (p *Pipeline) SaveReview(id string, edits map[string]string) (*classifier.Record, error) {
	s, err := p.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Phase != session.PhaseReviewing {
		return nil, fmt.Errorf("%w: phase %s", session.ErrInvalidPhase, s.Phase)
	}

	s.ApplyEdits(edits)
	merged := s.MergedRecord()
	if missing := classifier.MissingFieldLabels(merged); len(missing) > 0 {
		return nil, &session.MissingFieldsError{Labels: missing}
	}
	return &merged, nil
}

// Credentials are the out-of-band account credentials collected earlier in
// the registration flow and passed through unchanged.
type Credentials struct {
	Email       string
	PhoneNumber string
	Password    string
}

// Submit re-validates the edited record, assembles the account-creation
// payload and invokes the account collaborator. A missing password is a
// contract violation that aborts before any network call and ends the
// session.
func (p *Pipeline) Submit(ctx context.Context, id string, creds Credentials) error {
	s, err := p.sessions.Get(id)
	if err != nil {
		return err
	}
	if s.Phase != session.PhaseReviewing {
		return fmt.Errorf("%w: phase %s", session.ErrInvalidPhase, s.Phase)
	}

	merged := s.MergedRecord()
	if missing := classifier.MissingFieldLabels(merged); len(missing) > 0 {
		return &session.MissingFieldsError{Labels: missing}
	}

	opLogger := logging.WithOperation(p.logger, "pipeline.submit", s.ID)
	s.Phase = session.PhaseSubmitting

	payload, err := BuildAccountRequest(merged, creds)
	if err != nil {
		opLogger.Error("submission contract violation", zap.Error(err))
		p.sessions.Remove(s.ID)
		return err
	}

	if err := p.accounts.CreateAccount(ctx, payload); err != nil {
		wrapped := logging.NewOperationError("pipeline.create_account", s.ID, err)
		opLogger.Error("account creation failed", zap.Error(wrapped))
		s.Phase = session.PhaseReviewing
		return wrapped
	}

	p.recordAttempt(ctx, s, repository.StageSubmission, true, 0)

	s.Phase = session.PhaseCompleted
	p.sessions.Remove(s.ID)
	opLogger.Info("registration submitted")
	return nil
}

// Abandon discards the session and everything it owns. Safe to call in any
// phase.
func (p *Pipeline) Abandon(id string) {
	p.sessions.Remove(id)
}

// Session exposes a live session for the transport layer.
func (p *Pipeline) Session(id string) (*session.Session, error) {
	return p.sessions.Get(id)
}

// recordAttempt writes one audit row. Audit persistence never alters the
// pipeline outcome; failures are logged and dropped.
func (p *Pipeline) recordAttempt(ctx context.Context, s *session.Session, stage string, matched bool, missingCount int) {
	if p.repo == nil {
		return
	}
	attempt := &repository.VerificationAttempt{
		AttemptID:         uuid.NewString(),
		SessionID:         s.ID,
		Flow:              string(s.Flow),
		Stage:             stage,
		FaceMatched:       matched,
		MissingFieldCount: missingCount,
		Details:           fmt.Sprintf("stage:%s matched:%t", stage, matched),
		CreatedAt:         time.Now().UTC(),
	}
	if err := p.repo.SaveAttempt(ctx, attempt); err != nil {
		logging.WithOperation(p.logger, "pipeline.record_attempt", s.ID).
			Warn("failed to persist attempt", zap.Error(err))
	}
}

func tokenTexts(tokens []ocr.Token) []string {
	texts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		texts = append(texts, token.Text)
	}
	return texts
}

func imageHash(image capture.Image) string {
	sum := sha1.Sum(image.Data)
	return hex.EncodeToString(sum[:])
}
