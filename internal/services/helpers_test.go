package services

import (
	"testing"

	"github.com/veripack/veripack-backend/internal/types"
)

func TestTimestampToSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"01:30", 90},
		{"12:05", 725},
		{"1:02:03", 3723},
		{"45", 45},
		{"garbage", 0},
		{"1:xx", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := timestampToSeconds(tt.in); got != tt.want {
			t.Errorf("timestampToSeconds(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSecondsToTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "00:00"},
		{90, "01:30"},
		{725.4, "12:05"},
		{-5, "00:00"},
	}
	for _, tt := range tests {
		if got := secondsToTimestamp(tt.in); got != tt.want {
			t.Errorf("secondsToTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToCitationAnchorsURL(t *testing.T) {
	lecture := types.Lecture{Title: "Sorting", URL: "https://www.youtube.com/watch?v=abc123def45"}
	citation := toCitation(lecture, rawCitation{Label: "Pivot choice", Timestamp: "02:15", Snippet: "pick the median"})
	if citation.URL != "https://www.youtube.com/watch?v=abc123def45&t=135s" {
		t.Errorf("url = %q", citation.URL)
	}
	if citation.Source != "Sorting" {
		t.Errorf("source = %q", citation.Source)
	}
}

func TestBuildTranscriptText(t *testing.T) {
	segments := []types.TranscriptSegment{
		{Timestamp: "00:00", Text: "hello"},
		{Timestamp: "00:05", Text: "world"},
	}
	want := "[00:00] hello\n[00:05] world"
	if got := BuildTranscriptText(segments); got != want {
		t.Errorf("BuildTranscriptText = %q, want %q", got, want)
	}
	if got := BuildTranscriptText(nil); got != "" {
		t.Errorf("BuildTranscriptText(nil) = %q, want empty", got)
	}
}

func TestTagMatchesTopic(t *testing.T) {
	topic := types.BlueprintTopic{ID: "topic_sorting_1", Title: "Sorting"}
	tests := []struct {
		tags []string
		want bool
	}{
		{[]string{"sorting"}, true},
		{[]string{"TOPIC_SORTING_1"}, true},
		{[]string{"graphs"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := tagMatchesTopic(tt.tags, topic); got != tt.want {
			t.Errorf("tagMatchesTopic(%v) = %v, want %v", tt.tags, got, tt.want)
		}
	}
}
