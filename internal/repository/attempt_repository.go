package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/id-verify/internal/logging"
)

// VerificationAttempt is one persisted gate outcome: either a face-match
// decision or a final submission. Attempt rows are an audit trail only; the
// session itself is never persisted.
type VerificationAttempt struct {
	ID                uint      `gorm:"primaryKey"`
	AttemptID         string    `gorm:"column:attempt_id;uniqueIndex;size:64"`
	SessionID         string    `gorm:"column:session_id;index;size:64"`
	Flow              string    `gorm:"column:flow;size:32"`
	Stage             string    `gorm:"column:stage;size:32"`
	FaceMatched       bool      `gorm:"column:face_matched"`
	MissingFieldCount int       `gorm:"column:missing_field_count"`
	Details           string    `gorm:"column:details;type:text"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// Attempt stages.
const (
	StageFaceGate   = "face_gate"
	StageSubmission = "submission"
)

// TableName overrides the default table name.
func (VerificationAttempt) TableName() string {
	return "verification_attempts"
}

// MetricsAggregation holds the raw aggregates computed in the database.
type MetricsAggregation struct {
	TotalCount      int64 `gorm:"column:total_count"`
	MatchedCount    int64 `gorm:"column:matched_count"`
	SubmissionCount int64 `gorm:"column:submission_count"`
}

// AttemptRepository provides persistence APIs for verification attempts.
type AttemptRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewAttemptRepository creates a new repository instance.
func NewAttemptRepository(db *gorm.DB, logger *zap.Logger) *AttemptRepository {
	return &AttemptRepository{
		db:             db,
		logger:         logger.Named("attempt_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AttemptRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&VerificationAttempt{})
}

// SaveAttempt persists one gate outcome, retrying transient failures.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, attempt *VerificationAttempt) error {
	return r.executeWithRetry(ctx, "repository.save_attempt", attempt.SessionID, func() error {
		return r.db.WithContext(ctx).Create(attempt).Error
	})
}

// FindBySession returns every persisted attempt for a session, oldest first.
func (r *AttemptRepository) FindBySession(ctx context.Context, sessionID string) ([]*VerificationAttempt, error) {
	var attempts []*VerificationAttempt
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

// AggregateMetrics computes attempt totals for the metrics summary.
func (r *AttemptRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.db.WithContext(ctx).
		Model(&VerificationAttempt{}).
		Select("COUNT(*) AS total_count, " +
			"COALESCE(SUM(CASE WHEN face_matched THEN 1 ELSE 0 END), 0) AS matched_count, " +
			"COALESCE(SUM(CASE WHEN stage = 'submission' THEN 1 ELSE 0 END), 0) AS submission_count").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *AttemptRepository) executeWithRetry(ctx context.Context, operation, sessionID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, sessionID)

	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, sessionID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, sessionID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, sessionID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
