package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	creatorpkg "github.com/pulseawards/vote-payments/internal/creator"
	paymentmodel "github.com/pulseawards/vote-payments/internal/core/datamodel/payment"
	paymentpkg "github.com/pulseawards/vote-payments/internal/payment"
)

// PaymentRepository persists the ledger. All state transitions are
// conditional updates on status='pending' with a RowsAffected check, so a
// transition races at the store and the loser observes a no-op instead of a
// double write.
type PaymentRepository struct {
	db    *gorm.DB
	tally creatorpkg.TallyCreditor
}

func NewPaymentRepository(db *gorm.DB, tally creatorpkg.TallyCreditor) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db:    db,
		tally: tally,
	}
}

func (r *PaymentRepository) Create(p *paymentmodel.PaymentAttempt) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id string) (*paymentmodel.PaymentAttempt, error) {
	var p paymentmodel.PaymentAttempt
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewayReference(reference string) (*paymentmodel.PaymentAttempt, error) {
	var p paymentmodel.PaymentAttempt
	err := r.db.Where("gateway_reference = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetGatewayReference records the correlation id the gateway assigned. Only a
// pending attempt accepts it; the reference is immutable once set.
func (r *PaymentRepository) SetGatewayReference(id, reference string, gatewayResponse json.RawMessage) error {
	updates := map[string]interface{}{
		"gateway_reference": reference,
		"updated_at":        time.Now().UTC(),
	}
	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}
	return r.db.Model(&paymentmodel.PaymentAttempt{}).
		Where("id = ? AND status = ? AND gateway_reference IS NULL", id, paymentmodel.StatusPending).
		Updates(updates).Error
}

// MarkSucceeded performs the pending->success transition and the vote-tally
// increment in one transaction. Returns true when this call won the
// transition; false means the attempt was already terminal and nothing was
// written.
func (r *PaymentRepository) MarkSucceeded(id string, creatorID int64, votes int, gatewayResponse json.RawMessage) (bool, error) {
	claimed := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":       paymentmodel.StatusSuccess,
			"processed_at": now,
			"updated_at":   now,
		}
		if gatewayResponse != nil {
			updates["gateway_response"] = gatewayResponse
		}

		result := tx.Model(&paymentmodel.PaymentAttempt{}).
			Where("id = ? AND status = ?", id, paymentmodel.StatusPending).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		claimed = true
		// A failed credit rolls back the status write, so the attempt stays
		// pending and a retried signal re-enters the transition cleanly.
		return r.tally.CreditVotes(tx, creatorID, votes)
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// MarkFailed performs the pending->failed transition. Same CAS contract as
// MarkSucceeded.
func (r *PaymentRepository) MarkFailed(id, reason string, gatewayResponse json.RawMessage) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":         paymentmodel.StatusFailed,
		"failure_reason": reason,
		"processed_at":   now,
		"updated_at":     now,
	}
	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}

	result := r.db.Model(&paymentmodel.PaymentAttempt{}).
		Where("id = ? AND status = ?", id, paymentmodel.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *PaymentRepository) ListStalePending(olderThan time.Time, limit int) ([]*paymentmodel.PaymentAttempt, error) {
	var attempts []*paymentmodel.PaymentAttempt
	err := r.db.Where("status = ? AND created_at < ?", paymentmodel.StatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

func (r *PaymentRepository) ListByStatus(status string, offset, limit int) ([]*paymentmodel.PaymentAttempt, error) {
	var attempts []*paymentmodel.PaymentAttempt
	query := r.db.Order("created_at DESC").Offset(offset).Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Find(&attempts).Error
	return attempts, err
}

func (r *PaymentRepository) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.Model(&paymentmodel.PaymentAttempt{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}
