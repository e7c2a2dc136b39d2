// Package types holds the shared data model for exam packs, generation jobs
// and everything persisted by the store.
package types

type Lecture struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	VideoID         string `json:"videoId"`
	DurationSeconds int    `json:"durationSeconds"`
	Order           int    `json:"order"`
}

type TranscriptSegment struct {
	Start     float64 `json:"start"`
	Duration  float64 `json:"duration"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	Timestamp string  `json:"timestamp"`
}

type BlueprintTopic struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Weight        int      `json:"weight"`
	Prerequisites []string `json:"prerequisites"`
	RevisionOrder int      `json:"revisionOrder"`
}

type Blueprint struct {
	Title         string           `json:"title"`
	Topics        []BlueprintTopic `json:"topics"`
	RevisionOrder []string         `json:"revisionOrder"`
}

type Citation struct {
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet,omitempty"`
}

type VisualSprite struct {
	SpriteURL string `json:"spriteUrl"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Columns   int    `json:"columns"`
	Rows      int    `json:"rows"`
	Col       int    `json:"col"`
	Row       int    `json:"row"`
}

type VisualReference struct {
	URL         string        `json:"url"`
	Timestamp   string        `json:"timestamp"`
	Description string        `json:"description"`
	Kind        string        `json:"kind,omitempty"`
	Sprite      *VisualSprite `json:"sprite,omitempty"`
}

type NoteSection struct {
	Heading    string   `json:"heading"`
	Bullets    []string `json:"bullets"`
	Timestamps []string `json:"timestamps"`
}

type NoteDocument struct {
	LectureID         string            `json:"lectureId"`
	LectureTitle      string            `json:"lectureTitle"`
	LectureURL        string            `json:"lectureUrl"`
	VideoID           string            `json:"videoId"`
	Summary           string            `json:"summary"`
	Sections          []NoteSection     `json:"sections"`
	KeyTakeaways      []string          `json:"keyTakeaways"`
	Citations         []Citation        `json:"citations"`
	Verified          bool              `json:"verified"`
	VerificationNotes []string          `json:"verificationNotes,omitempty"`
	Visuals           []VisualReference `json:"visuals,omitempty"`
}

type QuestionOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type Question struct {
	ID                string           `json:"id"`
	Type              string           `json:"type"`
	Difficulty        string           `json:"difficulty"`
	Bloom             string           `json:"bloom"`
	TimeSeconds       int              `json:"timeSeconds"`
	Tags              []string         `json:"tags"`
	Stem              string           `json:"stem"`
	Options           []QuestionOption `json:"options,omitempty"`
	Answer            string           `json:"answer"`
	Rationale         string           `json:"rationale"`
	Citations         []Citation       `json:"citations"`
	Verified          bool             `json:"verified"`
	VerificationNotes []string         `json:"verificationNotes,omitempty"`
}

const (
	QuestionTypeMCQ       = "mcq"
	QuestionTypeShort     = "short"
	QuestionTypeTrueFalse = "true_false"
)

type ExamSection struct {
	Title       string   `json:"title"`
	QuestionIDs []string `json:"questionIds"`
	TimeMinutes int      `json:"timeMinutes"`
}

type Exam struct {
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	TotalTimeMinutes int           `json:"totalTimeMinutes"`
	Sections         []ExamSection `json:"sections"`
}

type MasteryRecord struct {
	TopicID      string  `json:"topicId"`
	Score        float64 `json:"score"`
	Streak       int     `json:"streak"`
	LastSeen     string  `json:"lastSeen"`
	NextReviewAt string  `json:"nextReviewAt"`
}

type ResearchSource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Excerpt string `json:"excerpt"`
}

type ResearchReport struct {
	Summary string           `json:"summary"`
	Sources []ResearchSource `json:"sources"`
}

type ExportLinks struct {
	AnkiCSV string `json:"ankiCsv,omitempty"`
	AnkiTSV string `json:"ankiTsv,omitempty"`
	HTML    string `json:"html,omitempty"`
}

type Pack struct {
	ID             string                   `json:"id"`
	Title          string                   `json:"title"`
	Input          string                   `json:"input"`
	CreatedAt      string                   `json:"createdAt"`
	Blueprint      Blueprint                `json:"blueprint"`
	Notes          []NoteDocument           `json:"notes"`
	Questions      []Question               `json:"questions"`
	Exam           Exam                     `json:"exam"`
	Mastery        map[string]MasteryRecord `json:"mastery"`
	ResearchReport *ResearchReport          `json:"researchReport,omitempty"`
	Exports        *ExportLinks             `json:"exports,omitempty"`
}

type PackSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	Input     string `json:"input"`
}

const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

type JobStatus struct {
	ID                string   `json:"id"`
	Status            string   `json:"status"`
	Step              string   `json:"step"`
	Progress          float64  `json:"progress"`
	TotalLectures     int      `json:"totalLectures"`
	CompletedLectures int      `json:"completedLectures"`
	PackID            string   `json:"packId,omitempty"`
	Errors            []string `json:"errors"`
	CurrentLecture    string   `json:"currentLecture,omitempty"`
	TraceID           string   `json:"traceId,omitempty"`
	CreatedAt         string   `json:"createdAt"`
	UpdatedAt         string   `json:"updatedAt"`
}

// PackDraft checkpoints the notes completed so far, keyed by the producing
// job id. It is the unit of resumability.
type PackDraft struct {
	JobID     string         `json:"jobId"`
	Input     string         `json:"input"`
	Notes     []NoteDocument `json:"notes"`
	UpdatedAt string         `json:"updatedAt"`
}

type GradeResult struct {
	QuestionID    string         `json:"questionId"`
	Correct       bool           `json:"correct"`
	CorrectAnswer string         `json:"correctAnswer"`
	Explanation   string         `json:"explanation"`
	Citations     []Citation     `json:"citations"`
	Mastery       *MasteryRecord `json:"mastery,omitempty"`
}

type GeneratePackOptions struct {
	ExamSize         int      `json:"examSize"`
	Formats          []string `json:"formats"`
	Language         string   `json:"language"`
	IncludeResearch  bool     `json:"includeResearch"`
	IncludeCoach     *bool    `json:"includeCoach,omitempty"`
	IncludeAssist    bool     `json:"includeAssist"`
	UseCodeExecution bool     `json:"useCodeExecution"`
	SimulateDelayMs  *int     `json:"simulateDelayMs,omitempty"`
}

type VaultDoc struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

type StoryboardLevel struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	FrameCount  int    `json:"frameCount"`
	Columns     int    `json:"columns"`
	Rows        int    `json:"rows"`
	IntervalMs  int    `json:"intervalMs"`
	Name        string `json:"name"`
	Signature   string `json:"signature"`
	Level       int    `json:"level"`
	URLTemplate string `json:"urlTemplate"`
}

type StoryboardSpec struct {
	BaseURL string            `json:"baseUrl"`
	Levels  []StoryboardLevel `json:"levels"`
}

type CoachTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CoachSession struct {
	ID        string      `json:"id"`
	PackID    string      `json:"packId"`
	Mode      string      `json:"mode"`
	Turns     []CoachTurn `json:"turns"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
}

type ScheduleDay struct {
	Date   string          `json:"date"`
	Topics []ScheduleTopic `json:"topics"`
}

type ScheduleTopic struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type RemediationItem struct {
	TopicID     string     `json:"topicId"`
	TopicTitle  string     `json:"topicTitle"`
	Advice      string     `json:"advice"`
	QuestionIDs []string   `json:"questionIds"`
	Citations   []Citation `json:"citations"`
}
