package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/sse"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
	"github.com/veripack/veripack-backend/internal/utils"
)

// PipelineInputs carries everything one generation run needs. API keys come
// from the request, never from server state.
type PipelineInputs struct {
	Input           string
	YouTubeAPIKey   string
	GeminiAPIKey    string
	ProModel        string
	FlashModel      string
	ExamDate        string
	VaultNotes      string
	VaultDocIDs     []string
	ResearchSources []string
	ResearchAPIKey  string
	ResearchQuery   string
	Options         types.GeneratePackOptions
	ResumeJobID     string
}

const defaultSimulateDelayMs = 150

// NormalizeOptions fills every unset option with its default. Nil pointer
// fields mean the caller left them out; an explicit zero delay stays zero.
func NormalizeOptions(options types.GeneratePackOptions) types.GeneratePackOptions {
	if options.ExamSize <= 0 {
		options.ExamSize = 12
	}
	if len(options.Formats) == 0 {
		options.Formats = []string{"pdf", "csv"}
	}
	if options.Language == "" {
		options.Language = "en"
	}
	if options.SimulateDelayMs == nil {
		delay := defaultSimulateDelayMs
		options.SimulateDelayMs = &delay
	} else if *options.SimulateDelayMs < 0 {
		delay := 0
		options.SimulateDelayMs = &delay
	}
	if options.IncludeCoach == nil {
		coach := true
		options.IncludeCoach = &coach
	}
	return options
}

func simulateDelay(options types.GeneratePackOptions) time.Duration {
	if options.SimulateDelayMs == nil {
		return 0
	}
	return time.Duration(*options.SimulateDelayMs) * time.Millisecond
}

// PipelineService owns the whole generation run: resolve, transcribe,
// generate, verify, assemble, persist. Run is designed to be launched on its
// own goroutine; all observable state flows through the job record and the
// SSE hub.
type PipelineService interface {
	CreateJob(ctx context.Context, traceID string) (*types.JobStatus, error)
	Run(ctx context.Context, jobID string, inputs PipelineInputs)
}

type pipelineService struct {
	log        *logger.Logger
	store      *store.Store
	hub        *sse.Hub
	resolver   ContentResolver
	transcript TranscriptSource
	blueprint  BlueprintService
	notes      NoteService
	questions  QuestionService
	research   ResearchService
	storyboard StoryboardService
	vault      VaultService
}

func NewPipelineService(
	log *logger.Logger,
	st *store.Store,
	hub *sse.Hub,
	resolver ContentResolver,
	transcript TranscriptSource,
	blueprint BlueprintService,
	notes NoteService,
	questions QuestionService,
	research ResearchService,
	storyboard StoryboardService,
	vault VaultService,
) (PipelineService, error) {
	if st == nil {
		return nil, errNilStore
	}
	if hub == nil || resolver == nil || transcript == nil || blueprint == nil || notes == nil || questions == nil || research == nil || storyboard == nil || vault == nil {
		return nil, fmt.Errorf("all pipeline dependencies are required")
	}
	return &pipelineService{
		log:        log.With("service", "PipelineService"),
		store:      st,
		hub:        hub,
		resolver:   resolver,
		transcript: transcript,
		blueprint:  blueprint,
		notes:      notes,
		questions:  questions,
		research:   research,
		storyboard: storyboard,
		vault:      vault,
	}, nil
}

func (s *pipelineService) CreateJob(ctx context.Context, traceID string) (*types.JobStatus, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	job := &types.JobStatus{
		ID:        utils.MakeID("job"),
		Status:    types.JobQueued,
		Step:      "Queued",
		Progress:  0,
		Errors:    []string{},
		TraceID:   traceID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SetJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// update applies a job mutation and publishes the fresh snapshot to SSE
// subscribers.
func (s *pipelineService) update(ctx context.Context, jobID string, apply func(*types.JobStatus)) {
	job, err := s.store.UpdateJob(ctx, jobID, apply)
	if err != nil {
		s.log.Warn("Job update failed", "jobID", jobID, "error", err)
		return
	}
	s.hub.Publish(jobID, sse.Message{Event: sse.EventStatus, Data: job})
	if job.Status == types.JobCompleted || job.Status == types.JobFailed {
		s.hub.Publish(jobID, sse.Message{Event: sse.EventDone, Data: map[string]string{
			"status": job.Status,
			"packId": job.PackID,
		}})
	}
}

func (s *pipelineService) Run(ctx context.Context, jobID string, inputs PipelineInputs) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.log.Error("Pipeline job missing", "jobID", jobID, "error", err)
		return
	}
	jobErrors := append([]string{}, job.Errors...)

	if err := s.run(ctx, jobID, inputs, &jobErrors); err != nil {
		s.log.Error("Pipeline run failed", "jobID", jobID, "error", err)
		failErrors := append(append([]string{}, jobErrors...), err.Error())
		s.update(ctx, jobID, func(j *types.JobStatus) {
			j.Status = types.JobFailed
			j.Step = "Failed"
			j.Errors = failErrors
		})
	}
}

func (s *pipelineService) run(ctx context.Context, jobID string, inputs PipelineInputs, jobErrors *[]string) error {
	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Status = types.JobProcessing
		j.Step = "Mapping playlist"
		j.Progress = 0.05
	})

	resolved, err := s.resolver.Resolve(ctx, inputs.Input, inputs.YouTubeAPIKey)
	if err != nil {
		return err
	}
	title, lectures := resolved.Title, resolved.Lectures

	// resume only when the prior draft was built from the same input
	resumeNotes := make(map[string]types.NoteDocument)
	if inputs.ResumeJobID != "" {
		if draft, err := s.store.GetDraft(ctx, inputs.ResumeJobID); err == nil {
			if draft.Input == inputs.Input {
				for _, note := range draft.Notes {
					resumeNotes[note.LectureID] = note
				}
			}
		} else if !errors.Is(err, pkgerr.ErrNotFound) {
			s.log.Warn("Draft lookup failed", "jobID", inputs.ResumeJobID, "error", err)
		}
		if _, err := s.store.DeleteDraft(ctx, inputs.ResumeJobID); err != nil {
			s.log.Warn("Draft delete failed", "jobID", inputs.ResumeJobID, "error", err)
		}
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.TotalLectures = len(lectures)
		j.CompletedLectures = 0
		j.CurrentLecture = ""
		j.Progress = 0.1
	})

	blueprint := s.blueprint.BuildBlueprint(title, lectures)

	var researchReport *types.ResearchReport
	if inputs.Options.IncludeResearch {
		s.update(ctx, jobID, func(j *types.JobStatus) {
			j.Step = "Building research blueprint"
			j.Progress = 0.15
		})
		report, researchErr := s.runResearch(ctx, title, inputs)
		if researchErr != nil {
			*jobErrors = append(*jobErrors, "Research error: "+researchErr.Error())
			snapshot := append([]string{}, *jobErrors...)
			s.update(ctx, jobID, func(j *types.JobStatus) { j.Errors = snapshot })
		} else {
			researchReport = report
		}
		if researchReport != nil {
			if refined, err := s.blueprint.BuildResearchBlueprint(ctx, title, lectures, researchReport, inputs.GeminiAPIKey, inputs.ProModel); err == nil && refined != nil {
				blueprint = *refined
			} else if err != nil {
				s.log.Warn("Research blueprint fell back to duration weights", "error", err)
			}
		}
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Step = "Generating evidence-backed notes"
		j.Progress = 0.2
	})

	vaultDocIDs := inputs.VaultDocIDs
	baseContextParts := make([]string, 0, 2)
	if inputs.VaultNotes != "" {
		baseContextParts = append(baseContextParts, inputs.VaultNotes)
	}
	if inputs.ExamDate != "" {
		baseContextParts = append(baseContextParts, "Exam date: "+inputs.ExamDate)
	}
	globalContext := s.buildContext(ctx, baseContextParts, title, vaultDocIDs)

	var notes []types.NoteDocument
	transcripts := make(map[string][]types.TranscriptSegment)

	for index, lecture := range lectures {
		_, resumed := resumeNotes[lecture.ID]
		note, segments, lectureErr := s.runLecture(ctx, jobID, lecture, inputs, resumeNotes, baseContextParts, vaultDocIDs)
		if lectureErr != nil {
			message := lectureErr.Error()
			*jobErrors = append(*jobErrors, fmt.Sprintf("Lecture %s failed: %s", lecture.Title, message))
			snapshot := append([]string{}, *jobErrors...)
			s.update(ctx, jobID, func(j *types.JobStatus) {
				j.Errors = snapshot
				j.Step = "Skipped " + lecture.Title
			})
			note = types.NoteDocument{
				LectureID:         lecture.ID,
				LectureTitle:      lecture.Title,
				LectureURL:        lecture.URL,
				VideoID:           lecture.VideoID,
				Summary:           "Transcript unavailable or generation failed.",
				Sections:          []types.NoteSection{},
				KeyTakeaways:      []string{},
				Citations:         []types.Citation{},
				Verified:          false,
				VerificationNotes: []string{message},
			}
		}
		if segments != nil {
			transcripts[lecture.ID] = segments
		}
		notes = append(notes, note)

		completed := index + 1
		progress := 0.2 + (float64(completed)/float64(len(lectures)))*0.4
		s.update(ctx, jobID, func(j *types.JobStatus) {
			j.CompletedLectures = completed
			j.Progress = progress
		})
		if err := s.store.SetDraft(ctx, &types.PackDraft{
			JobID:     jobID,
			Input:     inputs.Input,
			Notes:     notes,
			UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			s.log.Warn("Draft checkpoint failed", "jobID", jobID, "error", err)
		}
		// resumed lectures cost nothing, so they skip the pacing delay
		if delay := simulateDelay(inputs.Options); !resumed && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Step = "Building question bank"
		j.Progress = 0.65
	})

	questions, err := s.questions.GenerateQuestionBank(ctx, notes, inputs.GeminiAPIKey, inputs.ProModel, 4, globalContext)
	if err != nil {
		return err
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Step = "Verifying questions"
		j.Progress = 0.72
	})

	transcriptParts := make([]string, 0, len(notes))
	for _, note := range notes {
		transcriptParts = append(transcriptParts, BuildTranscriptText(transcripts[note.LectureID]))
	}
	transcriptContext := strings.Join(transcriptParts, "\n")

	verifiedQuestions, err := s.verifyQuestionBank(ctx, questions, notes, transcriptContext, globalContext, inputs)
	if err != nil {
		return err
	}

	verifiedQuestions, err = s.backfillCoverage(ctx, blueprint, notes, verifiedQuestions, transcriptContext, globalContext, inputs)
	if err != nil {
		return err
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Step = "Assembling mock exam"
		j.Progress = 0.78
	})

	exam := BuildExam(verifiedQuestions, inputs.Options.ExamSize, title+" Mock Exam")

	mastery := make(map[string]types.MasteryRecord, len(blueprint.Topics))
	for _, topic := range blueprint.Topics {
		mastery[topic.ID] = CreateMasteryRecord(topic.ID)
	}

	pack := &types.Pack{
		ID:             utils.MakeID("pack"),
		Title:          title + " Exam Pack",
		Input:          inputs.Input,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
		Blueprint:      blueprint,
		Notes:          notes,
		Questions:      verifiedQuestions,
		Exam:           exam,
		Mastery:        mastery,
		ResearchReport: researchReport,
		Exports:        &types.ExportLinks{},
	}
	if err := s.store.SetPack(ctx, pack); err != nil {
		return fmt.Errorf("persist pack: %w", err)
	}
	if _, err := s.store.DeleteDraft(ctx, jobID); err != nil {
		s.log.Warn("Draft cleanup failed", "jobID", jobID, "error", err)
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Status = types.JobCompleted
		j.Step = "Ready"
		j.Progress = 1
		j.PackID = pack.ID
		j.CurrentLecture = ""
	})
	s.log.Info("Pack pipeline completed", "jobID", jobID, "packID", pack.ID, "lectures", len(lectures), "questions", len(verifiedQuestions))
	return nil
}

// runLecture produces one note: transcript (cache first), generation,
// verification with a single regeneration, then best-effort visuals. A
// resumed note short-circuits the whole thing.
func (s *pipelineService) runLecture(
	ctx context.Context,
	jobID string,
	lecture types.Lecture,
	inputs PipelineInputs,
	resumeNotes map[string]types.NoteDocument,
	baseContextParts []string,
	vaultDocIDs []string,
) (types.NoteDocument, []types.TranscriptSegment, error) {
	if cached, ok := resumeNotes[lecture.ID]; ok {
		return cached, nil, nil
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.CurrentLecture = lecture.Title
		j.Step = "Transcribing " + lecture.Title
	})

	segments, err := s.store.GetTranscript(ctx, lecture.VideoID)
	if err != nil {
		if !errors.Is(err, pkgerr.ErrNotFound) {
			s.log.Warn("Transcript cache read failed", "videoID", lecture.VideoID, "error", err)
		}
		segments, err = s.transcript.Fetch(ctx, lecture.VideoID, inputs.Options.Language)
		if err != nil {
			return types.NoteDocument{}, nil, err
		}
		if err := s.store.SetTranscript(ctx, lecture.VideoID, segments); err != nil {
			s.log.Warn("Transcript cache write failed", "videoID", lecture.VideoID, "error", err)
		}
	}

	s.update(ctx, jobID, func(j *types.JobStatus) {
		j.Step = "Generating notes for " + lecture.Title
	})

	lectureContext := s.buildContext(ctx, baseContextParts, lecture.Title, vaultDocIDs)

	note, err := s.notes.GenerateNotes(ctx, lecture, segments, inputs.GeminiAPIKey, inputs.ProModel, lectureContext)
	if err != nil {
		return types.NoteDocument{}, segments, err
	}
	verified, err := s.notes.VerifyNoteWithRetry(ctx, note, segments, inputs.GeminiAPIKey, inputs.FlashModel, inputs.ProModel, lectureContext)
	if err != nil {
		return types.NoteDocument{}, segments, err
	}

	verified.Visuals = s.storyboard.BuildVisualReferences(ctx, lecture, verified.Citations)
	return verified, segments, nil
}

// buildContext joins the request-supplied context with vault matches for the
// given query, capped at the prompt budget.
func (s *pipelineService) buildContext(ctx context.Context, baseParts []string, query string, vaultDocIDs []string) string {
	parts := append([]string{}, baseParts...)
	if len(vaultDocIDs) > 0 {
		if vaultContext, err := s.vault.BuildVaultContext(ctx, query, vaultDocIDs); err == nil && vaultContext != "" {
			parts = append(parts, vaultContext)
		} else if err != nil {
			s.log.Warn("Vault context unavailable", "error", err)
		}
	}
	return utils.Truncate(strings.Join(parts, "\n"), 20000)
}

func (s *pipelineService) runResearch(ctx context.Context, title string, inputs PipelineInputs) (*types.ResearchReport, error) {
	var sources []types.ResearchSource
	if len(inputs.ResearchSources) > 0 {
		sources = s.research.FetchSources(ctx, inputs.ResearchSources, nil)
	} else if inputs.ResearchAPIKey != "" {
		query := inputs.ResearchQuery
		if query == "" {
			query = title + " syllabus past paper topics"
		}
		results, err := s.research.SearchSources(ctx, query, inputs.ResearchAPIKey, 5)
		if err != nil {
			return nil, err
		}
		urls := make([]string, len(results))
		for i, result := range results {
			urls[i] = result.URL
		}
		sources = s.research.FetchSources(ctx, urls, results)
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return s.research.BuildReport(ctx, title, sources, inputs.GeminiAPIKey, inputs.ProModel)
}

// verifyQuestionBank verifies every question, and for failures with a
// tag-matched note runs the bounded regenerate-and-reverify loop: at most
// two attempts, keeping the original question id throughout. The final
// verdict stands either way.
func (s *pipelineService) verifyQuestionBank(
	ctx context.Context,
	questions []types.Question,
	notes []types.NoteDocument,
	transcriptContext, globalContext string,
	inputs PipelineInputs,
) ([]types.Question, error) {
	verified := make([]types.Question, 0, len(questions))
	for _, question := range questions {
		current, err := s.questions.VerifyQuestion(ctx, question, transcriptContext, inputs.GeminiAPIKey, inputs.FlashModel, inputs.Options.UseCodeExecution)
		if err != nil {
			return nil, err
		}

		if !current.Verified {
			if noteMatch := findNoteForTags(notes, current.Tags); noteMatch != nil {
				for attempt := 0; attempt < 2; attempt++ {
					issues := strings.Join(current.VerificationNotes, " | ")
					if issues == "" {
						issues = "Unsupported answer"
					}
					regenerated, err := s.questions.RegenerateQuestion(ctx, *noteMatch, inputs.GeminiAPIKey, inputs.ProModel, issues, globalContext, current.ID)
					if err != nil {
						return nil, err
					}
					current, err = s.questions.VerifyQuestion(ctx, regenerated, transcriptContext, inputs.GeminiAPIKey, inputs.FlashModel, inputs.Options.UseCodeExecution)
					if err != nil {
						return nil, err
					}
					if current.Verified {
						break
					}
				}
			}
		}
		verified = append(verified, current)
	}
	return verified, nil
}

// findNoteForTags requires an exact tag match on lecture title or id; this
// is stricter than topic matching on purpose.
func findNoteForTags(notes []types.NoteDocument, tags []string) *types.NoteDocument {
	for i := range notes {
		for _, tag := range tags {
			if tag == notes[i].LectureTitle || tag == notes[i].LectureID {
				return &notes[i]
			}
		}
	}
	return nil
}

// backfillCoverage generates one verified-or-not question for each blueprint
// topic no question tags reference, when a note with the exact topic title
// exists. Backfilled questions are appended regardless of their verdict.
func (s *pipelineService) backfillCoverage(
	ctx context.Context,
	blueprint types.Blueprint,
	notes []types.NoteDocument,
	questions []types.Question,
	transcriptContext, globalContext string,
	inputs PipelineInputs,
) ([]types.Question, error) {
	covered := make(map[string]bool, len(blueprint.Topics))
	for _, question := range questions {
		for _, topic := range blueprint.Topics {
			if containsString(question.Tags, topic.Title) || containsString(question.Tags, topic.ID) {
				covered[topic.ID] = true
			}
		}
	}

	for _, topic := range blueprint.Topics {
		if covered[topic.ID] {
			continue
		}
		var noteMatch *types.NoteDocument
		for i := range notes {
			if notes[i].LectureTitle == topic.Title {
				noteMatch = &notes[i]
				break
			}
		}
		if noteMatch == nil {
			continue
		}
		extra, err := s.questions.GenerateQuestionBank(ctx, []types.NoteDocument{*noteMatch}, inputs.GeminiAPIKey, inputs.ProModel, 1, globalContext)
		if err != nil {
			return nil, err
		}
		for _, question := range extra {
			checked, err := s.questions.VerifyQuestion(ctx, question, transcriptContext, inputs.GeminiAPIKey, inputs.FlashModel, inputs.Options.UseCodeExecution)
			if err != nil {
				return nil, err
			}
			questions = append(questions, checked)
		}
	}
	return questions, nil
}
