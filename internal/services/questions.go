package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/types"
)

// QuestionService generates per-lecture exam questions and verifies them
// with deterministic heuristics plus a model check.
type QuestionService interface {
	GenerateQuestionBank(ctx context.Context, notes []types.NoteDocument, apiKey, model string, perLecture int, extraContext string) ([]types.Question, error)
	RegenerateQuestion(ctx context.Context, note types.NoteDocument, apiKey, model, issues, extraContext, existingID string) (types.Question, error)
	VerifyQuestion(ctx context.Context, question types.Question, transcriptContext, apiKey, model string, useCodeExecution bool) (types.Question, error)
}

type questionService struct {
	log   *logger.Logger
	genai GenAIClient
}

func NewQuestionService(log *logger.Logger, genai GenAIClient) (QuestionService, error) {
	if genai == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return &questionService{
		log:   log.With("service", "QuestionService"),
		genai: genai,
	}, nil
}

var questionItemSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"type":        map[string]any{"type": "string"},
		"difficulty":  map[string]any{"type": "string"},
		"bloom":       map[string]any{"type": "string"},
		"timeSeconds": map[string]any{"type": "number"},
		"tags":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"stem":        map[string]any{"type": "string"},
		"options": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":   map[string]any{"type": "string"},
					"text": map[string]any{"type": "string"},
				},
				"required": []string{"id", "text"},
			},
		},
		"answer":    map[string]any{"type": "string"},
		"rationale": map[string]any{"type": "string"},
		"citations": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"label":     map[string]any{"type": "string"},
					"timestamp": map[string]any{"type": "string"},
					"snippet":   map[string]any{"type": "string"},
				},
				"required": []string{"label", "timestamp", "snippet"},
			},
		},
	},
	"required": []string{"type", "difficulty", "bloom", "timeSeconds", "tags", "stem", "answer", "rationale", "citations"},
}

var questionBankSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"questions": map[string]any{
			"type":  "array",
			"items": questionItemSchema,
		},
	},
	"required": []string{"questions"},
}

type questionItemResponse struct {
	Type        string                 `json:"type"`
	Difficulty  string                 `json:"difficulty"`
	Bloom       string                 `json:"bloom"`
	TimeSeconds float64                `json:"timeSeconds"`
	Tags        []string               `json:"tags"`
	Stem        string                 `json:"stem"`
	Options     []types.QuestionOption `json:"options"`
	Answer      string                 `json:"answer"`
	Rationale   string                 `json:"rationale"`
	Citations   []rawCitation          `json:"citations"`
}

type questionBankResponse struct {
	Questions []questionItemResponse `json:"questions"`
}

func (item questionItemResponse) toQuestion(note types.NoteDocument, id string) types.Question {
	citations := make([]types.Citation, 0, len(item.Citations))
	for _, citation := range item.Citations {
		citations = append(citations, toCitation(noteAsLecture(note), citation))
	}
	// coverage-matching invariant: tags always carry the lecture title
	tags := item.Tags
	if !containsString(tags, note.LectureTitle) {
		tags = append(append([]string{}, tags...), note.LectureTitle)
	}
	return types.Question{
		ID:          id,
		Type:        item.Type,
		Difficulty:  item.Difficulty,
		Bloom:       item.Bloom,
		TimeSeconds: int(item.TimeSeconds),
		Tags:        tags,
		Stem:        item.Stem,
		Options:     item.Options,
		Answer:      item.Answer,
		Rationale:   item.Rationale,
		Citations:   citations,
		Verified:    false,
	}
}

func (s *questionService) GenerateQuestionBank(ctx context.Context, notes []types.NoteDocument, apiKey, model string, perLecture int, extraContext string) ([]types.Question, error) {
	if perLecture <= 0 {
		perLecture = 4
	}
	var questions []types.Question
	for _, note := range notes {
		var prompt strings.Builder
		fmt.Fprintf(&prompt, `Generate %d exam questions based strictly on the lecture notes.
Lecture: %s
Notes summary: %s
Key takeaways: %s
Use the timestamps in citations.
`, perLecture, note.LectureTitle, note.Summary, strings.Join(note.KeyTakeaways, " | "))
		if extraContext != "" {
			fmt.Fprintf(&prompt, "Additional context:\n%s\n", extraContext)
		}
		prompt.WriteString("Return JSON matching the schema.")

		var response questionBankResponse
		err := s.genai.GenerateJSON(ctx, GenAIRequest{
			APIKey:     apiKey,
			Model:      model,
			Prompt:     prompt.String(),
			SchemaName: "question_bank",
			Schema:     questionBankSchema,
			Config: GenAIConfig{
				Temperature:     0.45,
				MaxOutputTokens: 1800,
			},
		}, &response)
		if err != nil {
			return nil, fmt.Errorf("question bank for %s: %w", note.LectureTitle, err)
		}

		for i, item := range response.Questions {
			id := fmt.Sprintf("q_%s_%d", note.LectureID, i+1)
			questions = append(questions, item.toQuestion(note, id))
		}
	}
	return questions, nil
}

// RegenerateQuestion produces one replacement question citing the verifier's
// issue list as repair instructions. When existingID is set the replacement
// keeps it, preserving question identity through the fix-up loop.
func (s *questionService) RegenerateQuestion(ctx context.Context, note types.NoteDocument, apiKey, model, issues, extraContext, existingID string) (types.Question, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, `Regenerate one exam question for this lecture notes. Fix these issues: %s.
Lecture: %s
Notes summary: %s
Key takeaways: %s
Use the timestamps in citations.
`, issues, note.LectureTitle, note.Summary, strings.Join(note.KeyTakeaways, " | "))
	if extraContext != "" {
		fmt.Fprintf(&prompt, "Additional context:\n%s\n", extraContext)
	}
	prompt.WriteString("Return JSON matching the schema.")

	var response questionItemResponse
	err := s.genai.GenerateJSON(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt.String(),
		SchemaName: "single_question",
		Schema:     questionItemSchema,
		Config: GenAIConfig{
			Temperature:     0.45,
			MaxOutputTokens: 1200,
		},
	}, &response)
	if err != nil {
		return types.Question{}, fmt.Errorf("regenerate question for %s: %w", note.LectureTitle, err)
	}

	id := existingID
	if id == "" {
		id = fmt.Sprintf("q_%s_%d", note.LectureID, time.Now().UnixMilli())
	}
	return response.toQuestion(note, id), nil
}

var digitPattern = regexp.MustCompile(`\d`)

// VerifyQuestion combines deterministic heuristics with a model support
// check. The question is verified only when the model says supported AND no
// heuristic tripped; the issue list carries both.
func (s *questionService) VerifyQuestion(ctx context.Context, question types.Question, transcriptContext, apiKey, model string, useCodeExecution bool) (types.Question, error) {
	heuristicIssues := questionHeuristics(question)

	prompt := fmt.Sprintf(`Check whether the answer and rationale are supported by the context.
Also flag ambiguity (more than one correct option) and weak distractors if this is MCQ.
Context:
%s
Question: %s
Answer: %s
Rationale: %s
Return JSON matching the schema.`,
		transcriptContext, question.Stem, question.Answer, question.Rationale)

	// numeric questions optionally get an arithmetic self-check tool
	var tools []map[string]any
	if useCodeExecution && digitPattern.MatchString(question.Stem+" "+question.Answer+" "+question.Rationale) {
		tools = []map[string]any{{"code_execution": map[string]any{}}}
	}

	var response verifyResponse
	err := s.genai.GenerateJSON(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt,
		SchemaName: "question_verification",
		Schema:     verifySchema,
		Tools:      tools,
		Config: GenAIConfig{
			Temperature:     0.2,
			MaxOutputTokens: 400,
			Retry:           &RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond},
		},
	}, &response)
	if err != nil {
		return types.Question{}, fmt.Errorf("verify question %s: %w", question.ID, err)
	}

	issues := append(append([]string{}, heuristicIssues...), response.Issues...)
	question.Verified = response.Supported && len(heuristicIssues) == 0
	question.VerificationNotes = issues
	return question, nil
}

func questionHeuristics(question types.Question) []string {
	var issues []string
	switch question.Type {
	case types.QuestionTypeMCQ:
		if len(question.Options) < 3 {
			issues = append(issues, "MCQ has fewer than 3 options.")
		}
		seen := make(map[string]bool, len(question.Options))
		duplicate := false
		answerPresent := false
		for _, option := range question.Options {
			text := strings.TrimSpace(option.Text)
			lower := strings.ToLower(text)
			if seen[lower] {
				duplicate = true
			}
			seen[lower] = true
			if text == strings.TrimSpace(question.Answer) {
				answerPresent = true
			}
		}
		if duplicate {
			issues = append(issues, "MCQ options include duplicates.")
		}
		if question.Answer != "" && len(question.Options) > 0 && !answerPresent {
			issues = append(issues, "Answer is not present in the options.")
		}
	case types.QuestionTypeTrueFalse:
		normalized := strings.ToLower(strings.TrimSpace(question.Answer))
		if normalized != "true" && normalized != "false" {
			issues = append(issues, "True/false answer is not 'true' or 'false'.")
		}
	}
	return issues
}
