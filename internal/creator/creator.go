package creator

import (
	"log/slog"

	"gorm.io/gorm"

	internal "github.com/pulseawards/vote-payments/internal"
	creatormodel "github.com/pulseawards/vote-payments/internal/core/datamodel/creator"
)

// RepositoryAPI is the slice of the content store this service reads.
type RepositoryAPI interface {
	GetByID(id int64) (*creatormodel.Creator, error)
}

// TallyCreditor applies the vote increment. CreditVotes runs inside the
// caller's transaction so that the tally write and the ledger transition
// commit or roll back together.
type TallyCreditor interface {
	CreditVotes(tx *gorm.DB, creatorID int64, votes int) error
}

type Service struct {
	repository RepositoryAPI
	logger     *slog.Logger
}

func NewService(repository RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repository: repository,
		logger:     logger,
	}
}

// GetVotable returns the creator when it exists and may receive paid votes.
func (s *Service) GetVotable(id int64) (*creatormodel.Creator, error) {
	c, err := s.repository.GetByID(id)
	if err != nil {
		s.logger.Warn("creator lookup failed", "creator_id", id, "error", err)
		return nil, internal.ErrCreatorNotFound
	}
	if !c.Votable() {
		s.logger.Warn("creator not votable", "creator_id", id, "approved", c.Approved, "active", c.Active)
		return nil, internal.ErrCreatorNotFound
	}
	return c, nil
}

// GetTally returns the current vote tally projection for a creator.
func (s *Service) GetTally(id int64) (*TallyResponse, error) {
	c, err := s.repository.GetByID(id)
	if err != nil {
		return nil, internal.ErrCreatorNotFound
	}
	return &TallyResponse{
		CreatorID: c.ID,
		Name:      c.Name,
		VoteCount: c.VoteCount,
	}, nil
}

type TallyResponse struct {
	CreatorID int64  `json:"creator_id"`
	Name      string `json:"name"`
	VoteCount int64  `json:"vote_count"`
}
