package postgres

import (
	"time"

	ngomodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/ngo"
	"github.com/frahmantamala/ngo-accountability/internal/ngo"
	"gorm.io/gorm"
)

// NgoRepository implements the ngo.Repository interface using GORM
type NgoRepository struct {
	db *gorm.DB
}

func NewNgoRepository(db *gorm.DB) ngo.Repository {
	return &NgoRepository{db: db}
}

func (r *NgoRepository) GetByID(id int64) (*ngomodel.NGO, error) {
	var record ngomodel.NGO
	if err := r.db.Where("id = ?", id).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *NgoRepository) GetByAccountNumber(accountNumber string) (*ngomodel.NGO, error) {
	var record ngomodel.NGO
	if err := r.db.Where("account_number = ?", accountNumber).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *NgoRepository) UpdateReputation(id int64, thumbsUp, redFlags, total, score int) error {
	return r.db.Model(&ngomodel.NGO{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"thumbs_up_count":      thumbsUp,
			"red_flag_count":       redFlags,
			"total_feedback_count": total,
			"reputation_score":     score,
			"updated_at":           time.Now(),
		}).Error
}
