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
	"github.com/veripack/veripack-backend/internal/utils"
)

const (
	CoachModeCoach  = "coach"
	CoachModeViva   = "viva"
	CoachModeAssist = "assist"
)

const vivaQuestionCount = 6

// SummarizePack condenses the blueprint and note takeaways into the context
// block every coach turn carries.
func SummarizePack(pack *types.Pack) string {
	topics := make([]string, 0, len(pack.Blueprint.Topics))
	for _, topic := range pack.Blueprint.Topics {
		topics = append(topics, fmt.Sprintf("%s (%d%%)", topic.Title, topic.Weight))
	}

	takeaways := make([]string, 0, 8)
	for _, note := range pack.Notes {
		for i, takeaway := range note.KeyTakeaways {
			if i >= 2 || len(takeaways) >= 8 {
				break
			}
			takeaways = append(takeaways, takeaway)
		}
		if len(takeaways) >= 8 {
			break
		}
	}

	return fmt.Sprintf("Blueprint topics: %s\nKey takeaways: %s",
		strings.Join(topics, " | "), strings.Join(takeaways, " | "))
}

// pickVivaQuestions draws from the weakest topics, at least three of them,
// collecting tag-matched questions up to count without repeats.
func pickVivaQuestions(pack *types.Pack, count int) []types.Question {
	type scoredTopic struct {
		topic types.BlueprintTopic
		score float64
	}
	scored := make([]scoredTopic, 0, len(pack.Blueprint.Topics))
	for _, topic := range pack.Blueprint.Topics {
		scored = append(scored, scoredTopic{topic: topic, score: pack.Mastery[topic.ID].Score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score < scored[j].score })

	keep := count
	if keep > len(scored) {
		keep = len(scored)
	}
	if keep < 3 && len(scored) >= 3 {
		keep = 3
	}
	scored = scored[:keep]

	used := make(map[string]bool, count)
	var questions []types.Question
	for _, entry := range scored {
		for _, question := range pack.Questions {
			if len(questions) >= count {
				return questions
			}
			if used[question.ID] || !tagMatchesTopic(question.Tags, entry.topic) {
				continue
			}
			used[question.ID] = true
			questions = append(questions, question)
		}
	}
	return questions
}

// BuildCoachPrompt assembles the system instruction and the turn prompt for
// one exchange. Viva mode embeds its question bank with held-back answers.
func BuildCoachPrompt(pack *types.Pack, message string, history []types.CoachTurn, mode string) (system, prompt string) {
	system = "You are VeriCoach, an exam prep tutor.\n" + SummarizePack(pack)

	var modeInstruction string
	switch mode {
	case CoachModeViva:
		modeInstruction = "Run a strict oral-viva session: ask one question, wait, grade the response (0-5), give concise feedback with evidence, then ask the next question."
	case CoachModeAssist:
		modeInstruction = "Assist the learner with explanations, quick checks, and concise worked examples."
	default:
		modeInstruction = "Coach the learner: answer questions, quiz them, and point to evidence timestamps."
	}

	var vivaBank string
	if mode == CoachModeViva {
		var blocks []string
		for i, question := range pickVivaQuestions(pack, vivaQuestionCount) {
			var evidence []string
			for j, citation := range question.Citations {
				if j >= 2 {
					break
				}
				evidence = append(evidence, citation.Timestamp+" "+citation.URL)
			}
			blocks = append(blocks, fmt.Sprintf("%d. %s\nAnswer: %s\nEvidence: %s",
				i+1, question.Stem, question.Answer, strings.Join(evidence, " | ")))
		}
		vivaBank = strings.Join(blocks, "\n\n")
	}

	historyLines := make([]string, 0, len(history))
	for _, turn := range history {
		speaker := "Coach"
		if turn.Role == "user" {
			speaker = "User"
		}
		historyLines = append(historyLines, speaker+": "+turn.Content)
	}

	var b strings.Builder
	b.WriteString(modeInstruction)
	b.WriteByte('\n')
	if mode == CoachModeViva {
		b.WriteString("Use the viva question bank below. Do NOT reveal the answer until the user responds.")
	}
	b.WriteByte('\n')
	if vivaBank != "" {
		b.WriteString("Viva question bank:\n")
		b.WriteString(vivaBank)
		b.WriteByte('\n')
	}
	b.WriteString("\nUse evidence timestamps when possible.\nConversation:\n")
	b.WriteString(strings.Join(historyLines, "\n"))
	b.WriteString("\nUser: ")
	b.WriteString(message)
	b.WriteString("\nCoach:")

	return system, b.String()
}

// CoachRequest drives one streamed coaching exchange. SessionID empty means
// start a new session. SourceURLs only matter in assist mode, where their
// excerpts are pulled into the prompt.
type CoachRequest struct {
	PackID     string   `json:"packId"`
	APIKey     string   `json:"apiKey"`
	Message    string   `json:"message"`
	Mode       string   `json:"mode,omitempty"`
	SessionID  string   `json:"sessionId,omitempty"`
	SourceURLs []string `json:"sourceUrls,omitempty"`
}

// CoachService streams the tutor's reply while teeing the full transcript
// into a persisted session.
type CoachService interface {
	Respond(ctx context.Context, req CoachRequest, model string, sink func(chunk string) error) (*types.CoachSession, error)
}

type coachService struct {
	log      *logger.Logger
	store    *store.Store
	genai    GenAIClient
	research ResearchService
}

func NewCoachService(log *logger.Logger, st *store.Store, genai GenAIClient, research ResearchService) (CoachService, error) {
	if st == nil {
		return nil, errNilStore
	}
	if genai == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	if research == nil {
		return nil, fmt.Errorf("research service is required")
	}
	return &coachService{
		log:      log.With("service", "CoachService"),
		store:    st,
		genai:    genai,
		research: research,
	}, nil
}

func (s *coachService) Respond(ctx context.Context, req CoachRequest, model string, sink func(chunk string) error) (*types.CoachSession, error) {
	pack, err := s.store.GetPack(ctx, req.PackID)
	if err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = CoachModeCoach
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var session *types.CoachSession
	if req.SessionID != "" {
		session, err = s.store.GetCoachSession(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	} else {
		session = &types.CoachSession{
			ID:        utils.MakeID("coach"),
			PackID:    pack.ID,
			Mode:      mode,
			CreatedAt: now,
		}
	}

	system, prompt := BuildCoachPrompt(pack, req.Message, session.Turns, mode)
	if mode == CoachModeAssist && len(req.SourceURLs) > 0 {
		if block := s.assistReferences(ctx, req.SourceURLs); block != "" {
			prompt = block + "\n" + prompt
		}
	}

	var reply strings.Builder
	err = s.genai.StreamText(ctx, GenAIRequest{
		APIKey:     req.APIKey,
		Model:      model,
		Prompt:     prompt,
		System:     system,
		SchemaName: "coach_turn",
		Config: GenAIConfig{
			Temperature:     0.6,
			MaxOutputTokens: 900,
		},
	}, func(chunk string) error {
		reply.WriteString(chunk)
		return sink(chunk)
	})
	if err != nil {
		return nil, err
	}

	session.Turns = append(session.Turns,
		types.CoachTurn{Role: "user", Content: req.Message},
		types.CoachTurn{Role: "assistant", Content: reply.String()},
	)
	session.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.store.SetCoachSession(ctx, session); err != nil {
		s.log.Warn("Coach session persist failed", "sessionID", session.ID, "error", err)
	}
	return session, nil
}

// assistReferences fetches the caller's reference URLs and formats their
// excerpts for the prompt. Capped at three sources per turn.
func (s *coachService) assistReferences(ctx context.Context, urls []string) string {
	if len(urls) > 3 {
		urls = urls[:3]
	}
	sources := s.research.FetchSources(ctx, urls, nil)
	var blocks []string
	for _, source := range sources {
		if source.Excerpt == "" || source.Excerpt == "Unavailable" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[%s] %s", source.Title, utils.Truncate(source.Excerpt, 1200)))
	}
	if len(blocks) == 0 {
		return ""
	}
	return "Reference excerpts:\n" + strings.Join(blocks, "\n")
}
