package ngo

import (
	"log/slog"
	"math"

	errors "github.com/frahmantamala/ngo-accountability/internal"
	ngomodel "github.com/frahmantamala/ngo-accountability/internal/core/datamodel/ngo"
)

// Reputation is the derived 0-100 trust view of an NGO.
type Reputation struct {
	NgoID              int64  `json:"ngo_id"`
	Name               string `json:"name"`
	ThumbsUpCount      int    `json:"thumbs_up_count"`
	RedFlagCount       int    `json:"red_flag_count"`
	TotalFeedbackCount int    `json:"total_feedback_count"`
	ReputationScore    int    `json:"reputation_score"`
}

// Score normalizes feedback counts to 0-100. No feedback means score 0.
func Score(thumbsUp, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(thumbsUp) / float64(total) * 100))
}

// Repository defines the data access methods for the NGO directory.
type Repository interface {
	GetByID(id int64) (*ngomodel.NGO, error)
	GetByAccountNumber(accountNumber string) (*ngomodel.NGO, error)
	UpdateReputation(id int64, thumbsUp, redFlags, total, score int) error
}

// Service is the NGO directory collaborator consumed by the transaction and
// feedback services.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) GetByID(id int64) (*ngomodel.NGO, error) {
	record, err := s.repo.GetByID(id)
	if err != nil {
		return nil, errors.ErrNgoNotFound
	}
	return record, nil
}

func (s *Service) GetByAccountNumber(accountNumber string) (*ngomodel.NGO, error) {
	record, err := s.repo.GetByAccountNumber(accountNumber)
	if err != nil {
		return nil, errors.ErrNgoNotFound
	}
	return record, nil
}

func (s *Service) GetReputation(id int64) (*Reputation, error) {
	record, err := s.repo.GetByID(id)
	if err != nil {
		return nil, errors.ErrNgoNotFound
	}
	return &Reputation{
		NgoID:              record.ID,
		Name:               record.Name,
		ThumbsUpCount:      record.ThumbsUpCount,
		RedFlagCount:       record.RedFlagCount,
		TotalFeedbackCount: record.TotalFeedbackCount,
		ReputationScore:    record.ReputationScore,
	}, nil
}

// SetReputation persists recomputed aggregate counts and the derived score.
func (s *Service) SetReputation(id int64, thumbsUp, redFlags, total int) error {
	score := Score(thumbsUp, total)
	if err := s.repo.UpdateReputation(id, thumbsUp, redFlags, total, score); err != nil {
		s.logger.Error("failed to update NGO reputation", "error", err, "ngo_id", id)
		return err
	}

	s.logger.Info("NGO reputation updated",
		"ngo_id", id,
		"thumbs_up", thumbsUp,
		"red_flags", redFlags,
		"total", total,
		"score", score)
	return nil
}
