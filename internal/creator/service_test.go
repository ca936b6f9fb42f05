package creator_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/pulseawards/vote-payments/internal"
	"github.com/pulseawards/vote-payments/internal/creator"
	creatormodel "github.com/pulseawards/vote-payments/internal/core/datamodel/creator"
)

func TestCreator(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Creator Service Suite")
}

type mockCreatorRepository struct {
	creators map[int64]*creatormodel.Creator
}

func (m *mockCreatorRepository) GetByID(id int64) (*creatormodel.Creator, error) {
	c, ok := m.creators[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	return c, nil
}

var _ = Describe("CreatorService", func() {
	var (
		repo    *mockCreatorRepository
		service *creator.Service
	)

	BeforeEach(func() {
		repo = &mockCreatorRepository{creators: map[int64]*creatormodel.Creator{
			1: {ID: 1, Name: "Wanjiku M.", Approved: true, Active: true, VoteCount: 120},
			2: {ID: 2, Name: "Pending Review", Approved: false, Active: true},
			3: {ID: 3, Name: "Suspended", Approved: true, Active: false},
		}}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = creator.NewService(repo, logger)
	})

	Describe("GetVotable", func() {
		It("should return an approved active creator", func() {
			c, err := service.GetVotable(1)

			Expect(err).ToNot(HaveOccurred())
			Expect(c.Name).To(Equal("Wanjiku M."))
		})

		It("should hide an unapproved creator behind not found", func() {
			_, err := service.GetVotable(2)
			Expect(err).To(Equal(internal.ErrCreatorNotFound))
		})

		It("should hide an inactive creator behind not found", func() {
			_, err := service.GetVotable(3)
			Expect(err).To(Equal(internal.ErrCreatorNotFound))
		})

		It("should return not found for an unknown id", func() {
			_, err := service.GetVotable(99)
			Expect(err).To(Equal(internal.ErrCreatorNotFound))
		})
	})

	Describe("GetTally", func() {
		It("should project the current tally", func() {
			tally, err := service.GetTally(1)

			Expect(err).ToNot(HaveOccurred())
			Expect(tally.CreatorID).To(Equal(int64(1)))
			Expect(tally.VoteCount).To(Equal(int64(120)))
		})

		It("should report the tally of a not yet approved creator", func() {
			tally, err := service.GetTally(2)

			Expect(err).ToNot(HaveOccurred())
			Expect(tally.VoteCount).To(BeZero())
		})

		It("should return not found for an unknown id", func() {
			_, err := service.GetTally(99)
			Expect(err).To(Equal(internal.ErrCreatorNotFound))
		})
	})
})
