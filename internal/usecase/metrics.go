package usecase

import "context"

// MetricsSummary represents aggregated verification insights.
type MetricsSummary struct {
	TotalAttempts int64   `json:"total_attempts"`
	FaceMatches   int64   `json:"face_matches"`
	MatchRate     float64 `json:"match_rate"`
	Submissions   int64   `json:"submissions"`
}

// GetMetricsSummary aggregates gate outcomes from the persisted attempt log.
func (p *Pipeline) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := p.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalAttempts: aggregation.TotalCount,
		FaceMatches:   aggregation.MatchedCount,
		Submissions:   aggregation.SubmissionCount,
	}

	if aggregation.TotalCount > 0 {
		summary.MatchRate = float64(aggregation.MatchedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
