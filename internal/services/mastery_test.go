package services

import (
	"testing"
	"time"

	"github.com/veripack/veripack-backend/internal/types"
)

func TestUpdateMastery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	record := CreateMasteryRecord("topic_sorting_1")

	record = UpdateMastery(record, true, now)
	if record.Score != 0.3 {
		t.Errorf("score after one correct = %v, want 0.3", record.Score)
	}
	if record.Streak != 1 {
		t.Errorf("streak = %d, want 1", record.Streak)
	}
	next, err := time.Parse(time.RFC3339, record.NextReviewAt)
	if err != nil {
		t.Fatalf("nextReviewAt unparseable: %v", err)
	}
	if got := next.Sub(now); got != 24*time.Hour {
		t.Errorf("review interval = %v, want 24h", got)
	}

	record = UpdateMastery(record, true, now)
	if record.Score < 0.5 || record.Score > 0.52 {
		t.Errorf("score after two correct = %v, want ~0.51", record.Score)
	}
	next, _ = time.Parse(time.RFC3339, record.NextReviewAt)
	if got := next.Sub(now); got != 48*time.Hour {
		t.Errorf("second interval = %v, want 48h", got)
	}

	record = UpdateMastery(record, false, now)
	if record.Streak != 0 {
		t.Errorf("streak after miss = %d, want 0", record.Streak)
	}
	if record.Score > 0.31 {
		t.Errorf("score after miss = %v, want decayed", record.Score)
	}
	next, _ = time.Parse(time.RFC3339, record.NextReviewAt)
	if got := next.Sub(now); got != reviewMissInterval {
		t.Errorf("miss interval = %v, want %v", got, reviewMissInterval)
	}
}

func TestUpdateMasteryIntervalCap(t *testing.T) {
	now := time.Now().UTC()
	record := CreateMasteryRecord("t")
	for i := 0; i < 20; i++ {
		record = UpdateMastery(record, true, now)
	}
	next, _ := time.Parse(time.RFC3339, record.NextReviewAt)
	if got := next.Sub(now); got > reviewMaxInterval+time.Second {
		t.Errorf("interval = %v, want capped at %v", got, reviewMaxInterval)
	}
	if record.Score >= 1 {
		t.Errorf("score = %v, must stay below 1", record.Score)
	}
}

func TestGradeAnswer(t *testing.T) {
	tests := []struct {
		name     string
		question types.Question
		answer   string
		want     bool
	}{
		{"mcq exact", types.Question{Type: types.QuestionTypeMCQ, Answer: "Quicksort"}, "Quicksort", true},
		{"mcq case insensitive", types.Question{Type: types.QuestionTypeMCQ, Answer: "Quicksort"}, "  quicksort ", true},
		{"mcq wrong", types.Question{Type: types.QuestionTypeMCQ, Answer: "Quicksort"}, "Mergesort", false},
		{"true false", types.Question{Type: types.QuestionTypeTrueFalse, Answer: "true"}, "TRUE", true},
		{"short containment", types.Question{Type: types.QuestionTypeShort, Answer: "divide and conquer"}, "it uses divide and conquer recursion", true},
		{"empty answer", types.Question{Type: types.QuestionTypeMCQ, Answer: "x"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GradeAnswer(tt.question, tt.answer); got != tt.want {
				t.Errorf("GradeAnswer = %v, want %v", got, tt.want)
			}
		})
	}
}
