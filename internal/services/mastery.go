package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

// Spaced-repetition shape: a correct answer closes 30% of the remaining gap
// to 1.0 and pushes the next review out by a streak-scaled interval; a miss
// decays the score and schedules a quick revisit.
const (
	masteryGainFactor  = 0.3
	masteryDecayFactor = 0.6
	reviewBaseInterval = 24 * time.Hour
	reviewMaxInterval  = 21 * 24 * time.Hour
	reviewMissInterval = 8 * time.Hour
)

// CreateMasteryRecord initializes the neutral per-topic record at
// pack-creation time. The pipeline never touches it afterwards; only answer
// grading does.
func CreateMasteryRecord(topicID string) types.MasteryRecord {
	now := time.Now().UTC().Format(time.RFC3339)
	return types.MasteryRecord{
		TopicID:      topicID,
		Score:        0,
		Streak:       0,
		LastSeen:     now,
		NextReviewAt: now,
	}
}

// UpdateMastery applies one graded answer to a record.
func UpdateMastery(record types.MasteryRecord, correct bool, now time.Time) types.MasteryRecord {
	record.LastSeen = now.UTC().Format(time.RFC3339)
	if correct {
		record.Score += (1 - record.Score) * masteryGainFactor
		record.Streak++
		interval := reviewBaseInterval << (record.Streak - 1)
		if interval > reviewMaxInterval || interval <= 0 {
			interval = reviewMaxInterval
		}
		record.NextReviewAt = now.Add(interval).UTC().Format(time.RFC3339)
	} else {
		record.Score *= masteryDecayFactor
		record.Streak = 0
		record.NextReviewAt = now.Add(reviewMissInterval).UTC().Format(time.RFC3339)
	}
	return record
}

// GradeAnswer is model-free: exact normalized match for mcq and true/false,
// lenient containment for short answers.
func GradeAnswer(question types.Question, answer string) bool {
	got := strings.ToLower(strings.TrimSpace(answer))
	want := strings.ToLower(strings.TrimSpace(question.Answer))
	if got == "" || want == "" {
		return false
	}
	switch question.Type {
	case types.QuestionTypeMCQ, types.QuestionTypeTrueFalse:
		return got == want
	default:
		return got == want || strings.Contains(got, want) || strings.Contains(want, got)
	}
}

// MasteryService grades answers against a stored pack and folds the result
// into the owning topic's mastery record.
type MasteryService interface {
	Grade(ctx context.Context, packID, questionID, answer string) (*types.GradeResult, error)
}

type masteryService struct {
	log   *logger.Logger
	store *store.Store
}

func NewMasteryService(log *logger.Logger, st *store.Store) (MasteryService, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &masteryService{
		log:   log.With("service", "MasteryService"),
		store: st,
	}, nil
}

func (s *masteryService) Grade(ctx context.Context, packID, questionID, answer string) (*types.GradeResult, error) {
	pack, err := s.store.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}

	var question *types.Question
	for i := range pack.Questions {
		if pack.Questions[i].ID == questionID {
			question = &pack.Questions[i]
			break
		}
	}
	if question == nil {
		return nil, fmt.Errorf("question %s: %w", questionID, pkgerr.ErrNotFound)
	}

	correct := GradeAnswer(*question, answer)
	result := &types.GradeResult{
		QuestionID:    question.ID,
		Correct:       correct,
		CorrectAnswer: question.Answer,
		Explanation:   question.Rationale,
		Citations:     question.Citations,
	}

	if pack.Mastery == nil {
		pack.Mastery = make(map[string]types.MasteryRecord)
	}
	now := time.Now()
	for _, topic := range pack.Blueprint.Topics {
		if !tagMatchesTopic(question.Tags, topic) {
			continue
		}
		record, ok := pack.Mastery[topic.ID]
		if !ok {
			record = CreateMasteryRecord(topic.ID)
		}
		record = UpdateMastery(record, correct, now)
		pack.Mastery[topic.ID] = record
		if result.Mastery == nil {
			copied := record
			result.Mastery = &copied
		}
	}

	if err := s.store.SetPack(ctx, pack); err != nil {
		return nil, fmt.Errorf("persist mastery update: %w", err)
	}
	return result, nil
}
