package postgres

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	internal "github.com/frahmantamala/ngo-accountability/internal"
	ngomodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/ngo"
	"github.com/frahmantamala/ngo-accountability/internal/ngo"
)

func TestNgoRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "NGO Repository Suite")
}

var _ = Describe("NGO directory", func() {
	var (
		db      *gorm.DB
		service *ngo.Service
		seq     int
	)

	seedNgo := func(name string) *ngomodel.NGO {
		seq++
		record := &ngomodel.NGO{
			Name:          name,
			AccountNumber: fmt.Sprintf("110200%04d", seq),
			ContactEmail:  "kontak@example.org",
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}
		Expect(db.Create(record).Error).NotTo(HaveOccurred())
		return record
	}

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
		Expect(err).NotTo(HaveOccurred())
		Expect(db.AutoMigrate(&ngomodel.NGO{})).NotTo(HaveOccurred())

		testLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		service = ngo.NewService(NewNgoRepository(db), testLogger)
		seq = 0
	})

	Describe("lookups", func() {
		It("finds an NGO by account number", func() {
			seeded := seedNgo("Yayasan Peduli Bencana")

			found, err := service.GetByAccountNumber(seeded.AccountNumber)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(seeded.ID))
			Expect(found.Name).To(Equal("Yayasan Peduli Bencana"))
		})

		It("maps a missing account number to a domain error", func() {
			_, err := service.GetByAccountNumber("0000000000")
			Expect(err).To(MatchError(internal.ErrNgoNotFound))
		})

		It("maps a missing id to a domain error", func() {
			_, err := service.GetByID(999)
			Expect(err).To(MatchError(internal.ErrNgoNotFound))
		})
	})

	Describe("reputation", func() {
		It("persists recomputed counts with the derived score", func() {
			seeded := seedNgo("Rumah Harapan")

			Expect(service.SetReputation(seeded.ID, 7, 3, 10)).To(Succeed())

			rep, err := service.GetReputation(seeded.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.ThumbsUpCount).To(Equal(7))
			Expect(rep.RedFlagCount).To(Equal(3))
			Expect(rep.TotalFeedbackCount).To(Equal(10))
			Expect(rep.ReputationScore).To(Equal(70))
		})

		It("returns a zero score before any feedback", func() {
			seeded := seedNgo("Sahabat Pendidikan")

			rep, err := service.GetReputation(seeded.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.TotalFeedbackCount).To(Equal(0))
			Expect(rep.ReputationScore).To(Equal(0))
		})

		It("rounds the percentage to the nearest integer", func() {
			Expect(ngo.Score(1, 3)).To(Equal(33))
			Expect(ngo.Score(2, 3)).To(Equal(67))
			Expect(ngo.Score(0, 0)).To(Equal(0))
			Expect(ngo.Score(5, 5)).To(Equal(100))
		})
	})
})
