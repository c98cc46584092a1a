package draw

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lucky-draw/internal/db"
)

// Service is the draw transaction coordinator. Every mutating operation takes
// the in-process locks for the rows it touches (prize before batch before
// winner), runs one transaction, and releases the locks after commit or
// rollback. used_count on a prize is only ever written under that prize's
// lock, so two confirms against the same prize serialize and the second sees
// the first's effect.
type Service struct {
	db       *gorm.DB
	locks    *lockTable
	sampler  Sampler
	logger   *slog.Logger
	lockWait time.Duration
	now      func() time.Time
}

// NewService wires a coordinator. The sampler is injected so production uses
// the crypto source and tests a seeded one; lockWait bounds how long an
// operation blocks on a contended entity before failing with ErrBusy.
func NewService(conn *gorm.DB, sampler Sampler, logger *slog.Logger, lockWait time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &Service{
		db:       conn,
		locks:    newLockTable(),
		sampler:  sampler,
		logger:   logger,
		lockWait: lockWait,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Preview stages a draw: it clamps the requested count to the remaining
// quota, resolves eligible candidates, samples uniformly without replacement,
// and writes one PENDING batch with its PENDING winners. Capacity is not
// reserved; used_count moves only on Confirm. The prize lock is held across
// the candidate read and the writes so a concurrent preview cannot
// over-subscribe the same remaining capacity.
func (s *Service) Preview(ctx context.Context, projectID, prizeID uuid.UUID, count int, requestedBy string, scope Scope) (*db.DrawBatch, error) {
	if count <= 0 {
		return nil, fmt.Errorf("draw count must be positive: %w", ErrInvalidArgument)
	}

	unlock, err := s.locks.acquire(ctx, s.lockWait, prizeKey(prizeID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var batch db.DrawBatch
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prize db.Prize
		if err := tx.Where("id = ? AND project_id = ?", prizeID, projectID).First(&prize).Error; err != nil {
			return fmt.Errorf("load prize: %w", err)
		}

		remaining := prize.Remaining()
		if remaining <= 0 {
			return fmt.Errorf("prize %q has no slots left: %w", prize.Name, ErrCapacityExhausted)
		}
		effective := min(count, remaining)

		candidates, err := resolveCandidates(tx, &prize, scope)
		if err != nil {
			return err
		}
		if len(candidates) < effective {
			return fmt.Errorf("%d eligible for %d slots: %w", len(candidates), effective, ErrInsufficientCandidates)
		}

		picks, err := s.sampler.Sample(len(candidates), effective)
		if err != nil {
			return err
		}

		batch = db.DrawBatch{
			ProjectID:   projectID,
			PrizeID:     prizeID,
			RequestedBy: requestedBy,
			DrawCount:   effective,
			Status:      db.StatusPending,
			DrawScope:   scope.snapshot(),
		}
		if err := tx.Create(&batch).Error; err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		winners := make([]db.DrawWinner, 0, len(picks))
		for _, idx := range picks {
			member := candidates[idx]
			winners = append(winners, db.DrawWinner{
				BatchID:       batch.ID,
				ProjectID:     projectID,
				PrizeID:       prizeID,
				CustomerPhone: member.CustomerPhone,
				UID:           member.UID,
				Name:          member.Name,
				Phone:         member.Phone,
				Status:        db.StatusPending,
			})
		}
		if err := tx.Create(&winners).Error; err != nil {
			return fmt.Errorf("create winners: %w", err)
		}
		batch.Winners = winners
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draw previewed",
		"batch_id", batch.ID, "prize_id", prizeID, "project_id", projectID,
		"requested", count, "staged", batch.DrawCount, "requested_by", requestedBy)
	return &batch, nil
}

// Confirm commits a PENDING batch: its staged winners become CONFIRMED and
// the prize's used_count grows by their number. Remaining capacity is
// re-checked under the prize lock, because another batch may have confirmed
// since this one was previewed.
func (s *Service) Confirm(ctx context.Context, batchID uuid.UUID, confirmedBy string) (*db.DrawBatch, error) {
	prizeID, err := s.peekBatchPrize(ctx, batchID)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.acquire(ctx, s.lockWait, prizeKey(prizeID), batchKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var batch db.DrawBatch
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&batch, "id = ?", batchID).Error; err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		if batch.Status != db.StatusPending {
			return fmt.Errorf("batch is %s, only pending batches confirm: %w", batch.Status, ErrInvalidState)
		}

		var prize db.Prize
		if err := tx.First(&prize, "id = ?", batch.PrizeID).Error; err != nil {
			return fmt.Errorf("load prize: %w", err)
		}

		var staged int64
		if err := tx.Model(&db.DrawWinner{}).
			Where("batch_id = ? AND status = ?", batchID, db.StatusPending).
			Count(&staged).Error; err != nil {
			return fmt.Errorf("count staged winners: %w", err)
		}
		if int(staged) > prize.Remaining() {
			return fmt.Errorf("%d staged but only %d slots left: %w", staged, prize.Remaining(), ErrCapacityExhausted)
		}

		now := s.now()
		err := tx.Model(&db.DrawWinner{}).
			Where("batch_id = ? AND status = ?", batchID, db.StatusPending).
			Updates(map[string]any{"status": db.StatusConfirmed, "confirmed_at": now}).Error
		if err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("a staged member already holds a confirmed win for this prize: %w", ErrInvalidState)
			}
			return fmt.Errorf("confirm winners: %w", err)
		}

		if err := tx.Model(&db.Prize{}).
			Where("id = ?", prize.ID).
			Update("used_count", prize.UsedCount+int(staged)).Error; err != nil {
			return fmt.Errorf("consume quota: %w", err)
		}

		if err := tx.Model(&batch).Update("status", db.StatusConfirmed).Error; err != nil {
			return fmt.Errorf("confirm batch: %w", err)
		}
		return tx.Preload("Winners").First(&batch, "id = ?", batchID).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draw confirmed",
		"batch_id", batchID, "prize_id", prizeID, "winners", len(batch.Winners), "confirmed_by", confirmedBy)
	return &batch, nil
}

// Void discards a PENDING batch and its staged winners. used_count is
// untouched, capacity was never consumed, and the staged members become
// eligible again for later previews.
func (s *Service) Void(ctx context.Context, batchID uuid.UUID, reason, voidedBy string) (*db.DrawBatch, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("void reason is required: %w", ErrInvalidArgument)
	}

	unlock, err := s.locks.acquire(ctx, s.lockWait, batchKey(batchID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var batch db.DrawBatch
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&batch, "id = ?", batchID).Error; err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		if batch.Status != db.StatusPending {
			return fmt.Errorf("batch is %s, only pending batches void: %w", batch.Status, ErrInvalidState)
		}

		err := tx.Model(&db.DrawWinner{}).
			Where("batch_id = ? AND status = ?", batchID, db.StatusPending).
			Updates(map[string]any{"status": db.StatusVoid, "void_reason": reason}).Error
		if err != nil {
			return fmt.Errorf("void winners: %w", err)
		}

		err = tx.Model(&batch).
			Updates(map[string]any{"status": db.StatusVoid, "void_reason": reason}).Error
		if err != nil {
			return fmt.Errorf("void batch: %w", err)
		}
		return tx.Preload("Winners").First(&batch, "id = ?", batchID).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draw voided", "batch_id", batchID, "reason", reason, "voided_by", voidedBy)
	return &batch, nil
}

// Revoke reverses one already-CONFIRMED winner: the row goes VOID and the
// prize's used_count drops by one. The parent batch keeps its status; after a
// partial revocation a CONFIRMED batch may hold a mix of CONFIRMED and VOID
// winners. used_count dropping below zero would mean the ledger was corrupted
// outside the lock discipline, so it is treated as fatal rather than returned.
func (s *Service) Revoke(ctx context.Context, winnerID uuid.UUID, reason, revokedBy string) (*db.DrawWinner, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("revoke reason is required: %w", ErrInvalidArgument)
	}

	var peek db.DrawWinner
	if err := s.db.WithContext(ctx).First(&peek, "id = ?", winnerID).Error; err != nil {
		return nil, fmt.Errorf("load winner: %w", err)
	}

	unlock, err := s.locks.acquire(ctx, s.lockWait, prizeKey(peek.PrizeID), winnerKey(winnerID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var winner db.DrawWinner
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&winner, "id = ?", winnerID).Error; err != nil {
			return fmt.Errorf("load winner: %w", err)
		}
		if winner.Status != db.StatusConfirmed {
			return fmt.Errorf("winner is %s, only confirmed winners revoke: %w", winner.Status, ErrInvalidState)
		}

		var prize db.Prize
		if err := tx.First(&prize, "id = ?", winner.PrizeID).Error; err != nil {
			return fmt.Errorf("load prize: %w", err)
		}
		if prize.UsedCount <= 0 {
			panic(fmt.Sprintf("quota ledger underflow: prize %s has used_count=%d with a confirmed winner", prize.ID, prize.UsedCount))
		}

		err := tx.Model(&winner).
			Updates(map[string]any{"status": db.StatusVoid, "void_reason": reason}).Error
		if err != nil {
			return fmt.Errorf("void winner: %w", err)
		}
		return tx.Model(&db.Prize{}).
			Where("id = ?", prize.ID).
			Update("used_count", prize.UsedCount-1).Error
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("winner revoked",
		"winner_id", winnerID, "prize_id", winner.PrizeID, "reason", reason, "revoked_by", revokedBy)
	return &winner, nil
}

// ResetProjectWinners clears a project for reuse in one transaction: every
// CONFIRMED winner is revoked with its prize's used_count corrected, and
// every PENDING batch and winner is voided, including batches that staged no
// winners. All prize and pending-batch locks of the project are taken up
// front, so no draw activity interleaves with the sweep.
func (s *Service) ResetProjectWinners(ctx context.Context, projectID uuid.UUID, reason, resetBy string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("reset reason is required: %w", ErrInvalidArgument)
	}

	unlockProject, err := s.locks.acquire(ctx, s.lockWait, projectKey(projectID))
	if err != nil {
		return err
	}
	defer unlockProject()

	var prizeIDs []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&db.Prize{}).
		Where("project_id = ?", projectID).
		Pluck("id", &prizeIDs).Error; err != nil {
		return fmt.Errorf("load project prizes: %w", err)
	}
	unlockPrizes, err := s.locks.acquire(ctx, s.lockWait, sortedKeys(prizeKey, prizeIDs)...)
	if err != nil {
		return err
	}
	defer unlockPrizes()

	// New previews are blocked on the prize locks now, so the pending set is
	// stable.
	var batchIDs []uuid.UUID
	if err := s.db.WithContext(ctx).Model(&db.DrawBatch{}).
		Where("project_id = ? AND status = ?", projectID, db.StatusPending).
		Pluck("id", &batchIDs).Error; err != nil {
		return fmt.Errorf("load pending batches: %w", err)
	}
	unlockBatches, err := s.locks.acquire(ctx, s.lockWait, sortedKeys(batchKey, batchIDs)...)
	if err != nil {
		return err
	}
	defer unlockBatches()

	var revoked, voided int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prizes []db.Prize
		if err := tx.Where("project_id = ?", projectID).Find(&prizes).Error; err != nil {
			return fmt.Errorf("load prizes: %w", err)
		}
		for _, prize := range prizes {
			result := tx.Model(&db.DrawWinner{}).
				Where("prize_id = ? AND status = ?", prize.ID, db.StatusConfirmed).
				Updates(map[string]any{"status": db.StatusVoid, "void_reason": reason})
			if result.Error != nil {
				return fmt.Errorf("revoke winners of prize %s: %w", prize.ID, result.Error)
			}
			if result.RowsAffected == 0 {
				continue
			}
			newUsed := prize.UsedCount - int(result.RowsAffected)
			if newUsed < 0 {
				panic(fmt.Sprintf("quota ledger underflow: prize %s used_count=%d with %d confirmed winners", prize.ID, prize.UsedCount, result.RowsAffected))
			}
			if err := tx.Model(&db.Prize{}).
				Where("id = ?", prize.ID).
				Update("used_count", newUsed).Error; err != nil {
				return fmt.Errorf("release quota of prize %s: %w", prize.ID, err)
			}
			revoked += result.RowsAffected
		}

		result := tx.Model(&db.DrawWinner{}).
			Where("project_id = ? AND status = ?", projectID, db.StatusPending).
			Updates(map[string]any{"status": db.StatusVoid, "void_reason": reason})
		if result.Error != nil {
			return fmt.Errorf("void pending winners: %w", result.Error)
		}
		voided = result.RowsAffected

		err := tx.Model(&db.DrawBatch{}).
			Where("project_id = ? AND status = ?", projectID, db.StatusPending).
			Updates(map[string]any{"status": db.StatusVoid, "void_reason": reason}).Error
		if err != nil {
			return fmt.Errorf("void pending batches: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("project winners reset",
		"project_id", projectID, "revoked", revoked, "voided_pending", voided,
		"reason", reason, "reset_by", resetBy)
	return nil
}

// peekBatchPrize reads a batch outside any lock just to learn which prize
// lock to take. The batch is re-read under the locks before it is trusted.
func (s *Service) peekBatchPrize(ctx context.Context, batchID uuid.UUID) (uuid.UUID, error) {
	var batch db.DrawBatch
	if err := s.db.WithContext(ctx).Select("id", "prize_id").First(&batch, "id = ?", batchID).Error; err != nil {
		return uuid.Nil, fmt.Errorf("load batch: %w", err)
	}
	return batch.PrizeID, nil
}
