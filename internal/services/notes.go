package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/types"
)

// NoteService generates evidence-cited lecture notes and verifies them
// against the transcript. The per-lecture state machine is Generated ->
// Verified, or Generated -> Unverified -> Regenerated -> Reverified; exactly
// one regeneration, never a loop, and the regenerated result stands whatever
// its verdict (last write wins).
type NoteService interface {
	GenerateNotes(ctx context.Context, lecture types.Lecture, segments []types.TranscriptSegment, apiKey, model, extraContext string) (types.NoteDocument, error)
	VerifyNotes(ctx context.Context, note types.NoteDocument, segments []types.TranscriptSegment, apiKey, model string) (types.NoteDocument, error)
	VerifyNoteWithRetry(ctx context.Context, note types.NoteDocument, segments []types.TranscriptSegment, apiKey, flashModel, proModel, extraContext string) (types.NoteDocument, error)
}

type noteService struct {
	log   *logger.Logger
	genai GenAIClient
}

func NewNoteService(log *logger.Logger, genai GenAIClient) (NoteService, error) {
	if genai == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	return &noteService{
		log:   log.With("service", "NoteService"),
		genai: genai,
	}, nil
}

var noteSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"sections": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"heading":    map[string]any{"type": "string"},
					"bullets":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"timestamps": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"heading", "bullets", "timestamps"},
			},
		},
		"keyTakeaways": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
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
	"required": []string{"summary", "sections", "keyTakeaways", "citations"},
}

type noteResponse struct {
	Summary      string              `json:"summary"`
	Sections     []types.NoteSection `json:"sections"`
	KeyTakeaways []string            `json:"keyTakeaways"`
	Citations    []rawCitation       `json:"citations"`
}

func (s *noteService) GenerateNotes(ctx context.Context, lecture types.Lecture, segments []types.TranscriptSegment, apiKey, model, extraContext string) (types.NoteDocument, error) {
	transcriptText := BuildTranscriptText(segments)
	var prompt strings.Builder
	fmt.Fprintf(&prompt, `You are producing exam-ready notes for a lecture.
Lecture title: %s
Your job: create a concise summary, 3-5 sections with bullet points, key takeaways, and timestamped citations.
Rules:
- Each section bullet must be supported by the transcript.
- Citations must include a mm:ss timestamp present in the transcript.
- Keep language crisp and study-focused.
Transcript:
%s
`, lecture.Title, transcriptText)
	if extraContext != "" {
		fmt.Fprintf(&prompt, "Additional context:\n%s\n", extraContext)
	}
	prompt.WriteString("Return JSON matching the schema.")

	var response noteResponse
	err := s.genai.GenerateJSON(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt.String(),
		SchemaName: "lecture_notes",
		Schema:     noteSchema,
		Config: GenAIConfig{
			Temperature:     0.4,
			MaxOutputTokens: 1400,
		},
	}, &response)
	if err != nil {
		return types.NoteDocument{}, fmt.Errorf("generate notes for %s: %w", lecture.Title, err)
	}

	citations := make([]types.Citation, 0, len(response.Citations))
	for _, item := range response.Citations {
		citations = append(citations, toCitation(lecture, item))
	}

	return types.NoteDocument{
		LectureID:    lecture.ID,
		LectureTitle: lecture.Title,
		LectureURL:   lecture.URL,
		VideoID:      lecture.VideoID,
		Summary:      response.Summary,
		Sections:     response.Sections,
		KeyTakeaways: response.KeyTakeaways,
		Citations:    citations,
		Verified:     false,
	}, nil
}

var verifySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"supported": map[string]any{"type": "boolean"},
		"issues":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []string{"supported", "issues"},
}

type verifyResponse struct {
	Supported bool     `json:"supported"`
	Issues    []string `json:"issues"`
}

func (s *noteService) VerifyNotes(ctx context.Context, note types.NoteDocument, segments []types.TranscriptSegment, apiKey, model string) (types.NoteDocument, error) {
	transcriptText := BuildTranscriptText(segments)
	var sectionLines strings.Builder
	for _, section := range note.Sections {
		fmt.Fprintf(&sectionLines, "- %s: %s\n", section.Heading, strings.Join(section.Bullets, " | "))
	}

	prompt := fmt.Sprintf(`Check whether the following study notes are supported by the transcript.
If unsupported claims exist, list them briefly in issues.
Transcript:
%s
Notes:
Summary: %s
Sections:
%sKey takeaways: %s
Return JSON matching the schema.`,
		transcriptText, note.Summary, sectionLines.String(), strings.Join(note.KeyTakeaways, " | "))

	var response verifyResponse
	err := s.genai.GenerateJSON(ctx, GenAIRequest{
		APIKey:     apiKey,
		Model:      model,
		Prompt:     prompt,
		SchemaName: "note_verification",
		Schema:     verifySchema,
		Config: GenAIConfig{
			Temperature:     0.2,
			MaxOutputTokens: 600,
			Retry:           &RetryPolicy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond},
		},
	}, &response)
	if err != nil {
		return types.NoteDocument{}, fmt.Errorf("verify notes for %s: %w", note.LectureTitle, err)
	}

	note.Verified = response.Supported
	note.VerificationNotes = response.Issues
	return note, nil
}

// VerifyNoteWithRetry verifies a note, and on an unsupported verdict
// regenerates it once from scratch and verifies the regenerated copy. The
// second verification's verdict is final; the original note is not restored
// even if the retry came back worse.
func (s *noteService) VerifyNoteWithRetry(ctx context.Context, note types.NoteDocument, segments []types.TranscriptSegment, apiKey, flashModel, proModel, extraContext string) (types.NoteDocument, error) {
	verified, err := s.VerifyNotes(ctx, note, segments, apiKey, flashModel)
	if err != nil {
		return types.NoteDocument{}, err
	}
	if verified.Verified {
		return verified, nil
	}

	s.log.Debug("Note unverified, regenerating once", "lecture", note.LectureTitle, "issues", len(verified.VerificationNotes))
	retried, err := s.GenerateNotes(ctx, noteAsLecture(note), segments, apiKey, proModel, extraContext)
	if err != nil {
		return types.NoteDocument{}, err
	}
	return s.VerifyNotes(ctx, retried, segments, apiKey, flashModel)
}
