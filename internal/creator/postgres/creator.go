package postgres

import (
	"fmt"

	"gorm.io/gorm"

	creatormodel "github.com/pulseawards/vote-payments/internal/core/datamodel/creator"
)

type CreatorRepository struct {
	db *gorm.DB
}

func NewCreatorRepository(db *gorm.DB) *CreatorRepository {
	return &CreatorRepository{
		db: db,
	}
}

func (r *CreatorRepository) GetByID(id int64) (*creatormodel.Creator, error) {
	var c creatormodel.Creator
	err := r.db.First(&c, id).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreditVotes increments the creator's tally by votes within tx. The
// increment is a single UPDATE expression; there is no read-modify-write.
func (r *CreatorRepository) CreditVotes(tx *gorm.DB, creatorID int64, votes int) error {
	result := tx.Model(&creatormodel.Creator{}).
		Where("id = ?", creatorID).
		UpdateColumn("vote_count", gorm.Expr("vote_count + ?", votes))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("creator %d not found for vote credit", creatorID)
	}
	return nil
}

func (r *CreatorRepository) ListApproved() ([]*creatormodel.Creator, error) {
	var creators []*creatormodel.Creator
	err := r.db.Where("approved = ? AND active = ?", true, true).
		Order("vote_count DESC").
		Find(&creators).Error
	return creators, err
}
