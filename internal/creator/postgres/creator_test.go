package postgres

import (
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestCreatorRepository(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Creator Repository Suite")
}

// CreatorSQLite drops the now() defaults the real model declares for postgres
type CreatorSQLite struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Approved  bool      `gorm:"column:approved;default:false"`
	Active    bool      `gorm:"column:active"`
	VoteCount int64     `gorm:"column:vote_count;default:0"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (CreatorSQLite) TableName() string {
	return "creators"
}

var _ = ginkgo.Describe("CreatorRepository", func() {
	var (
		db   *gorm.DB
		repo *CreatorRepository
	)

	seed := func(id int64, name string, approved, active bool, votes int64) {
		err := db.Create(&CreatorSQLite{
			ID:        id,
			Name:      name,
			Approved:  approved,
			Active:    active,
			VoteCount: votes,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}).Error
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	}

	ginkgo.BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		err = db.AutoMigrate(&CreatorSQLite{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		repo = NewCreatorRepository(db)
	})

	ginkgo.Describe("GetByID", func() {
		ginkgo.It("should load a creator by id", func() {
			seed(1, "Wanjiku M.", true, true, 10)

			c, err := repo.GetByID(1)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(c.Name).To(gomega.Equal("Wanjiku M."))
			gomega.Expect(c.VoteCount).To(gomega.Equal(int64(10)))
		})

		ginkgo.It("should return an error for an unknown id", func() {
			_, err := repo.GetByID(99)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("CreditVotes", func() {
		ginkgo.It("should increment the tally atomically", func() {
			seed(1, "Wanjiku M.", true, true, 10)

			err := repo.CreditVotes(db, 1, 5)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			c, err := repo.GetByID(1)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(c.VoteCount).To(gomega.Equal(int64(15)))
		})

		ginkgo.It("should accumulate across repeated credits", func() {
			seed(1, "Wanjiku M.", true, true, 0)

			gomega.Expect(repo.CreditVotes(db, 1, 3)).To(gomega.Succeed())
			gomega.Expect(repo.CreditVotes(db, 1, 7)).To(gomega.Succeed())

			c, _ := repo.GetByID(1)
			gomega.Expect(c.VoteCount).To(gomega.Equal(int64(10)))
		})

		ginkgo.It("should fail when the creator row does not exist", func() {
			err := repo.CreditVotes(db, 42, 5)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("ListApproved", func() {
		ginkgo.It("should return only approved active creators ordered by tally", func() {
			seed(1, "Low", true, true, 5)
			seed(2, "High", true, true, 50)
			seed(3, "Unapproved", false, true, 100)
			seed(4, "Inactive", true, false, 100)

			creators, err := repo.ListApproved()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(creators).To(gomega.HaveLen(2))
			gomega.Expect(creators[0].Name).To(gomega.Equal("High"))
			gomega.Expect(creators[1].Name).To(gomega.Equal("Low"))
		})
	})
})
