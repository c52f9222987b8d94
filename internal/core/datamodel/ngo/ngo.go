package ngo

import "time"

// NGO is the directory entry for an accountable organization. The reputation
// fields are derived; only the reputation aggregator writes them.
type NGO struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"column:name;not null"`
	AccountNumber string `gorm:"column:account_number;not null;uniqueIndex"`
	ContactEmail  string `gorm:"column:contact_email"`

	ThumbsUpCount      int `gorm:"column:thumbs_up_count;not null;default:0"`
	RedFlagCount       int `gorm:"column:red_flag_count;not null;default:0"`
	TotalFeedbackCount int `gorm:"column:total_feedback_count;not null;default:0"`
	ReputationScore    int `gorm:"column:reputation_score;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (NGO) TableName() string {
	return "ngos"
}
