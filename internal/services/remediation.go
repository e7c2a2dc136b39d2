package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

const defaultRemediationTopics = 5

// RemediationRequest selects which topics need targeted advice. Explicit
// topics win, then the topics behind missed questions, then the weakest
// mastery scores.
type RemediationRequest struct {
	PackID               string   `json:"packId"`
	APIKey               string   `json:"apiKey"`
	Topics               []string `json:"topics,omitempty"`
	IncorrectQuestionIDs []string `json:"incorrectQuestionIds,omitempty"`
	MaxTopics            int      `json:"maxTopics,omitempty"`
}

type RemediationService interface {
	BuildPlan(ctx context.Context, req RemediationRequest, model string) ([]types.RemediationItem, error)
}

type remediationService struct {
	log   *logger.Logger
	store *store.Store
	genai GenAIClient
}

func NewRemediationService(log *logger.Logger, st *store.Store, genai GenAIClient) (RemediationService, error) {
	if st == nil {
		return nil, errNilStore
	}
	if genai == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return &remediationService{
		log:   log.With("service", "RemediationService"),
		store: st,
		genai: genai,
	}, nil
}

func (s *remediationService) BuildPlan(ctx context.Context, req RemediationRequest, model string) ([]types.RemediationItem, error) {
	pack, err := s.store.GetPack(ctx, req.PackID)
	if err != nil {
		return nil, err
	}

	maxTopics := req.MaxTopics
	if maxTopics <= 0 {
		maxTopics = defaultRemediationTopics
	}
	topics := selectRemediationTopics(pack, req, maxTopics)

	items := make([]types.RemediationItem, 0, len(topics))
	for _, topic := range topics {
		var questionIDs []string
		for _, question := range pack.Questions {
			if tagMatchesTopic(question.Tags, topic) {
				questionIDs = append(questionIDs, question.ID)
			}
		}

		var note *types.NoteDocument
		for i := range pack.Notes {
			if strings.EqualFold(pack.Notes[i].LectureTitle, topic.Title) {
				note = &pack.Notes[i]
				break
			}
		}

		advice := s.adviseTopic(ctx, topic, note, req.APIKey, model)
		item := types.RemediationItem{
			TopicID:     topic.ID,
			TopicTitle:  topic.Title,
			Advice:      advice,
			QuestionIDs: questionIDs,
		}
		if note != nil {
			item.Citations = note.Citations
		}
		items = append(items, item)
	}
	return items, nil
}

func selectRemediationTopics(pack *types.Pack, req RemediationRequest, maxTopics int) []types.BlueprintTopic {
	var selected []types.BlueprintTopic
	seen := make(map[string]bool)
	add := func(topic types.BlueprintTopic) {
		if len(selected) < maxTopics && !seen[topic.ID] {
			seen[topic.ID] = true
			selected = append(selected, topic)
		}
	}

	if len(req.Topics) > 0 {
		for _, want := range req.Topics {
			for _, topic := range pack.Blueprint.Topics {
				if strings.EqualFold(want, topic.Title) || strings.EqualFold(want, topic.ID) {
					add(topic)
				}
			}
		}
		return selected
	}

	if len(req.IncorrectQuestionIDs) > 0 {
		missed := make(map[string]bool, len(req.IncorrectQuestionIDs))
		for _, id := range req.IncorrectQuestionIDs {
			missed[id] = true
		}
		for _, question := range pack.Questions {
			if !missed[question.ID] {
				continue
			}
			for _, topic := range pack.Blueprint.Topics {
				if tagMatchesTopic(question.Tags, topic) {
					add(topic)
				}
			}
		}
		if len(selected) > 0 {
			return selected
		}
	}

	// fall back to the weakest mastery scores
	ranked := append([]types.BlueprintTopic{}, pack.Blueprint.Topics...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return pack.Mastery[ranked[i].ID].Score < pack.Mastery[ranked[j].ID].Score
	})
	for _, topic := range ranked {
		add(topic)
	}
	return selected
}

// adviseTopic asks the model for two or three sentences of study advice; the
// canned fallback keeps remediation total even when generation fails.
func (s *remediationService) adviseTopic(ctx context.Context, topic types.BlueprintTopic, note *types.NoteDocument, apiKey, model string) string {
	fallback := fmt.Sprintf("Review %s with the lecture notes and key takeaways.", topic.Title)
	if apiKey == "" {
		return fallback
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Give 2-3 sentences of study advice for the exam topic %q.\n", topic.Title)
	if note != nil {
		fmt.Fprintf(&prompt, "Notes summary: %s\nKey takeaways: %s\n", note.Summary, strings.Join(note.KeyTakeaways, " | "))
	}
	prompt.WriteString("Be concrete about what to rehearse and which mistakes to avoid.")

	advice, err := s.genai.GenerateText(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt.String(),
		SchemaName: "remediation_advice",
		Config: GenAIConfig{
			Temperature:     0.4,
			MaxOutputTokens: 200,
			Retry:           &RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond},
		},
	})
	if err != nil || strings.TrimSpace(advice) == "" {
		s.log.Debug("Remediation advice fell back", "topic", topic.Title, "error", err)
		return fallback
	}
	return strings.TrimSpace(advice)
}
