package services

import (
	"context"
	"sort"
	"time"

	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

const (
	defaultPracticeLimit = 5
	maxDueTopics         = 5
)

// PracticeSet is a short adaptive drill: questions from the topics that are
// due for review, weakest first.
type PracticeSet struct {
	PackID    string           `json:"packId"`
	Questions []types.Question `json:"questions"`
	DueTopics []string         `json:"dueTopics"`
}

// BuildPracticeSet ranks topics due-first, then by ascending mastery score,
// then by blueprint revision order, and greedily fills the set with each
// topic's questions until the limit is reached.
func BuildPracticeSet(pack *types.Pack, limit int, now time.Time) PracticeSet {
	if limit <= 0 {
		limit = defaultPracticeLimit
	}

	type rankedTopic struct {
		topic types.BlueprintTopic
		score float64
		due   bool
	}
	ranked := make([]rankedTopic, 0, len(pack.Blueprint.Topics))
	for _, topic := range pack.Blueprint.Topics {
		entry := rankedTopic{topic: topic, due: true}
		if record, ok := pack.Mastery[topic.ID]; ok {
			entry.score = record.Score
			if next, err := time.Parse(time.RFC3339, record.NextReviewAt); err == nil {
				entry.due = !next.After(now)
			}
		}
		ranked = append(ranked, entry)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].due != ranked[j].due {
			return ranked[i].due
		}
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].topic.RevisionOrder < ranked[j].topic.RevisionOrder
	})

	dueTopics := make([]string, 0, maxDueTopics)
	for _, entry := range ranked {
		if len(dueTopics) >= maxDueTopics {
			break
		}
		dueTopics = append(dueTopics, entry.topic.Title)
	}

	seen := make(map[string]bool, limit)
	questions := make([]types.Question, 0, limit)
	for _, entry := range ranked {
		if len(questions) >= limit {
			break
		}
		for _, question := range pack.Questions {
			if len(questions) >= limit {
				break
			}
			if seen[question.ID] || !tagMatchesTopic(question.Tags, entry.topic) {
				continue
			}
			seen[question.ID] = true
			questions = append(questions, question)
		}
	}
	// pad with whatever is left when topic matching runs dry
	for _, question := range pack.Questions {
		if len(questions) >= limit {
			break
		}
		if seen[question.ID] {
			continue
		}
		seen[question.ID] = true
		questions = append(questions, question)
	}

	return PracticeSet{PackID: pack.ID, Questions: questions, DueTopics: dueTopics}
}

// PracticeService loads a pack and builds its current drill.
type PracticeService interface {
	BuildSet(ctx context.Context, packID string, limit int) (*PracticeSet, error)
}

type practiceService struct {
	store *store.Store
}

func NewPracticeService(st *store.Store) (PracticeService, error) {
	if st == nil {
		return nil, errNilStore
	}
	return &practiceService{store: st}, nil
}

func (s *practiceService) BuildSet(ctx context.Context, packID string, limit int) (*PracticeSet, error) {
	pack, err := s.store.GetPack(ctx, packID)
	if err != nil {
		return nil, err
	}
	set := BuildPracticeSet(pack, limit, time.Now())
	return &set, nil
}
