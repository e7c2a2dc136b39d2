package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/types"
	"github.com/veripack/veripack-backend/internal/utils"
)

// researchTopicFloor guards the research-driven path: reports that yield
// fewer usable topics fall back to the duration-based blueprint. Tunable,
// not load-bearing.
const researchTopicFloor = 3

type BlueprintService interface {
	// BuildBlueprint derives topic weights from lecture durations. Weights
	// always sum to exactly 100.
	BuildBlueprint(courseTitle string, lectures []types.Lecture) types.Blueprint
	// BuildResearchBlueprint asks the model for a topic map grounded in a
	// research report. Returns nil (no error) when the result is unusable.
	BuildResearchBlueprint(ctx context.Context, courseTitle string, lectures []types.Lecture, report *types.ResearchReport, apiKey, model string) (*types.Blueprint, error)
}

type blueprintService struct {
	log   *logger.Logger
	genai GenAIClient
}

func NewBlueprintService(log *logger.Logger, genai GenAIClient) (BlueprintService, error) {
	if genai == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return &blueprintService{
		log:   log.With("service", "BlueprintService"),
		genai: genai,
	}, nil
}

func (s *blueprintService) BuildBlueprint(courseTitle string, lectures []types.Lecture) types.Blueprint {
	if len(lectures) == 0 {
		return types.Blueprint{Title: courseTitle + " Blueprint", Topics: []types.BlueprintTopic{}, RevisionOrder: []string{}}
	}
	totalSeconds := 0
	for _, lecture := range lectures {
		totalSeconds += clampSeconds(lecture.DurationSeconds)
	}

	rawWeights := make([]float64, len(lectures))
	rounded := make([]int, len(lectures))
	sum := 0
	for i, lecture := range lectures {
		rawWeights[i] = float64(clampSeconds(lecture.DurationSeconds)) / float64(totalSeconds) * 100
		rounded[i] = int(math.Round(rawWeights[i]))
		sum += rounded[i]
	}

	// rounding remainder goes to the single largest raw weight
	if diff := 100 - sum; diff != 0 && len(rounded) > 0 {
		maxIndex := 0
		for i, w := range rawWeights {
			if w > rawWeights[maxIndex] {
				maxIndex = i
			}
		}
		rounded[maxIndex] += diff
	}

	topics := make([]types.BlueprintTopic, len(lectures))
	for i, lecture := range lectures {
		prerequisites := []string{}
		if i > 0 {
			prerequisites = []string{lectures[i-1].Title}
		}
		topics[i] = types.BlueprintTopic{
			ID:            fmt.Sprintf("topic_%s_%d", utils.Slugify(lecture.Title), i+1),
			Title:         lecture.Title,
			Weight:        rounded[i],
			Prerequisites: prerequisites,
			RevisionOrder: i + 1,
		}
	}

	ordered := make([]types.BlueprintTopic, len(topics))
	copy(ordered, topics)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RevisionOrder < ordered[j].RevisionOrder
	})
	revisionOrder := make([]string, len(ordered))
	for i, topic := range ordered {
		revisionOrder[i] = topic.ID
	}

	return types.Blueprint{
		Title:         courseTitle + " Blueprint",
		Topics:        topics,
		RevisionOrder: revisionOrder,
	}
}

func clampSeconds(seconds int) int {
	if seconds < 1 {
		return 1
	}
	return seconds
}

var researchBlueprintSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"topics": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":         map[string]any{"type": "string"},
					"weight":        map[string]any{"type": "number"},
					"prerequisites": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"revisionOrder": map[string]any{"type": "number"},
				},
				"required": []string{"title", "weight", "revisionOrder"},
			},
		},
	},
	"required": []string{"topics"},
}

type researchBlueprintResponse struct {
	Topics []struct {
		Title         string   `json:"title"`
		Weight        float64  `json:"weight"`
		Prerequisites []string `json:"prerequisites"`
		RevisionOrder float64  `json:"revisionOrder"`
	} `json:"topics"`
}

func (s *blueprintService) BuildResearchBlueprint(ctx context.Context, courseTitle string, lectures []types.Lecture, report *types.ResearchReport, apiKey, model string) (*types.Blueprint, error) {
	if report == nil || report.Summary == "" || len(report.Sources) == 0 {
		return nil, nil
	}

	lectureTitles := make([]string, len(lectures))
	for i, lecture := range lectures {
		lectureTitles[i] = lecture.Title
	}
	var sourceLines strings.Builder
	for _, source := range report.Sources {
		fmt.Fprintf(&sourceLines, "- %s (%s)\n", source.Title, source.URL)
	}

	prompt := fmt.Sprintf(`Use the research memo to build a study blueprint for %s.
Lecture titles: %s
Research summary: %s
Sources:
%s
Return 5-12 topics with weights that sum to ~100, prerequisites by topic title, and revision order (1 = earliest).
Keep topics aligned to the lecture titles when possible. Return JSON matching the schema.`,
		courseTitle, strings.Join(lectureTitles, " | "), report.Summary, sourceLines.String())

	var response researchBlueprintResponse
	err := s.genai.GenerateJSON(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt,
		SchemaName: "research_blueprint",
		Schema:     researchBlueprintSchema,
		Config: GenAIConfig{
			Temperature:     0.3,
			MaxOutputTokens: 1200,
			Retry:           &RetryPolicy{MaxRetries: 2, BaseDelay: 600 * time.Millisecond},
		},
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("research blueprint: %w", err)
	}
	if len(response.Topics) == 0 {
		return nil, nil
	}

	topics := normalizeResearchTopics(response)
	if len(topics) < researchTopicFloor {
		s.log.Debug("Research blueprint discarded", "usable_topics", len(topics))
		return nil, nil
	}

	revisionOrder := make([]string, len(topics))
	for i, topic := range topics {
		revisionOrder[i] = topic.ID
	}
	return &types.Blueprint{
		Title:         courseTitle + " Blueprint",
		Topics:        topics,
		RevisionOrder: revisionOrder,
	}, nil
}

// normalizeResearchTopics trims titles, resolves prerequisite titles to
// topic ids, sorts by revision order and renormalizes weights to sum to 100
// with every topic keeping at least 1.
func normalizeResearchTopics(response researchBlueprintResponse) []types.BlueprintTopic {
	topics := make([]types.BlueprintTopic, 0, len(response.Topics))
	for i, raw := range response.Topics {
		title := strings.TrimSpace(raw.Title)
		if title == "" {
			continue
		}
		weight := raw.Weight
		if math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
			weight = 1
		}
		revisionOrder := int(raw.RevisionOrder)
		if revisionOrder <= 0 {
			revisionOrder = i + 1
		}
		prerequisites := make([]string, 0, len(raw.Prerequisites))
		for _, entry := range raw.Prerequisites {
			if entry = strings.TrimSpace(entry); entry != "" {
				prerequisites = append(prerequisites, entry)
			}
		}
		topics = append(topics, types.BlueprintTopic{
			ID:            fmt.Sprintf("topic_%s_%d", utils.Slugify(title), i+1),
			Title:         title,
			Weight:        int(weight),
			Prerequisites: prerequisites,
			RevisionOrder: revisionOrder,
		})
	}

	byTitle := make(map[string]string, len(topics))
	for _, topic := range topics {
		byTitle[strings.ToLower(topic.Title)] = topic.ID
	}
	for i := range topics {
		resolved := make([]string, 0, len(topics[i].Prerequisites))
		for _, entry := range topics[i].Prerequisites {
			if id, ok := byTitle[strings.ToLower(entry)]; ok {
				resolved = append(resolved, id)
			}
		}
		topics[i].Prerequisites = resolved
	}

	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].RevisionOrder < topics[j].RevisionOrder
	})

	total := 0
	for _, topic := range topics {
		total += topic.Weight
	}
	if total <= 0 || len(topics) == 0 {
		return topics
	}
	sum := 0
	for i := range topics {
		scaled := int(math.Round(float64(topics[i].Weight) / float64(total) * 100))
		if scaled < 1 {
			scaled = 1
		}
		topics[i].Weight = scaled
		sum += scaled
	}
	if diff := 100 - sum; diff != 0 {
		topics[0].Weight += diff
	}
	return topics
}
