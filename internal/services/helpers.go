package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/veripack/veripack-backend/internal/types"
)

var errNilStore = errors.New("store is required")

// timestampToSeconds parses "mm:ss" or "hh:mm:ss"; anything unparseable
// becomes 0 rather than an error, matching how citation links degrade.
func timestampToSeconds(timestamp string) int {
	parts := strings.Split(strings.TrimSpace(timestamp), ":")
	nums := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0
		}
		nums = append(nums, n)
	}
	switch len(nums) {
	case 3:
		return nums[0]*3600 + nums[1]*60 + nums[2]
	case 2:
		return nums[0]*60 + nums[1]
	case 1:
		return nums[0]
	default:
		return 0
	}
}

func secondsToTimestamp(seconds float64) string {
	total := int(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// rawCitation is the shape the model returns before it is anchored to a
// lecture URL.
type rawCitation struct {
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
	Snippet   string `json:"snippet"`
}

func toCitation(lecture types.Lecture, item rawCitation) types.Citation {
	seconds := timestampToSeconds(item.Timestamp)
	return types.Citation{
		Label:     item.Label,
		Timestamp: item.Timestamp,
		Source:    lecture.Title,
		URL:       fmt.Sprintf("%s&t=%ds", lecture.URL, seconds),
		Snippet:   item.Snippet,
	}
}

func noteAsLecture(note types.NoteDocument) types.Lecture {
	return types.Lecture{
		ID:      note.LectureID,
		Title:   note.LectureTitle,
		URL:     note.LectureURL,
		VideoID: note.VideoID,
	}
}

// BuildTranscriptText renders segments as "[mm:ss] text" lines, the context
// format every prompt and verifier uses.
func BuildTranscriptText(segments []types.TranscriptSegment) string {
	var b strings.Builder
	for i, segment := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[")
		b.WriteString(segment.Timestamp)
		b.WriteString("] ")
		b.WriteString(segment.Text)
	}
	return b.String()
}

// tagMatchesTopic implements the coverage-matching invariant: a question
// belongs to a topic when one of its tags equals the topic title or id,
// case-insensitively.
func tagMatchesTopic(tags []string, topic types.BlueprintTopic) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, topic.Title) || strings.EqualFold(tag, topic.ID) {
			return true
		}
	}
	return false
}

func containsString(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
