package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/LakshyaBetala/doitforme-marketplace-sub000/internal/models"
)

// sweepBatchSize bounds how many expired gigs one sweep run settles.
const sweepBatchSize = 50

// SweepDetail reports one gig's outcome within a sweep run.
type SweepDetail struct {
	GigID    uuid.UUID `json:"gig_id"`
	Released bool      `json:"released"`
	Error    string    `json:"error,omitempty"`
}

type SweepResult struct {
	ReleasedCount int           `json:"released_count"`
	Details       []SweepDetail `json:"details"`
}

// SweepAutoRelease force-completes delivered, undisputed gigs whose review
// window expired without poster action. It reuses the exact release path the
// manual triggers use; only the caller identity and the journal entry type
// differ. Gigs are processed independently: one failure never aborts the
// batch.
func (s *Service) SweepAutoRelease(ctx context.Context) (*SweepResult, error) {
	gigs, err := s.gigs.ListAutoReleasable(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Details: make([]SweepDetail, 0, len(gigs))}
	for _, gig := range gigs {
		detail := SweepDetail{GigID: gig.ID}
		if err := s.autoReleaseOne(ctx, gig); err != nil {
			if errors.Is(err, ErrAlreadySettled) {
				// A manual trigger won between selection and settlement.
				detail.Error = err.Error()
			} else {
				s.log.Error("auto-release failed", "gig_id", gig.ID, "error", err)
				detail.Error = err.Error()
			}
		} else {
			detail.Released = true
			res.ReleasedCount++
		}
		res.Details = append(res.Details, detail)
	}
	if res.ReleasedCount > 0 {
		s.log.Info("auto-release sweep done", "released", res.ReleasedCount, "scanned", len(gigs))
	}
	return res, nil
}

func (s *Service) autoReleaseOne(ctx context.Context, gig *models.Gig) error {
	// The selection query already filters disputes, but the record may have
	// changed between selection and settlement; the status guard inside
	// settleCompletion is the real protection.
	if gig.DisputeReason != nil {
		return ErrAlreadySettled
	}
	esc, err := s.escrows.GetByGigID(ctx, gig.ID)
	if err != nil {
		return ErrEscrowMissing
	}
	return s.settleCompletion(ctx, gig, esc, models.TxEscrowAutoRelease, nil)
}
