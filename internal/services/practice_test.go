package services

import (
	"testing"
	"time"

	"github.com/veripack/veripack-backend/internal/types"
)

func practicePack() *types.Pack {
	now := time.Now().UTC()
	past := now.Add(-time.Hour).Format(time.RFC3339)
	future := now.Add(48 * time.Hour).Format(time.RFC3339)

	return &types.Pack{
		ID: "pack_1",
		Blueprint: types.Blueprint{
			Topics: []types.BlueprintTopic{
				{ID: "t1", Title: "Sorting", RevisionOrder: 1},
				{ID: "t2", Title: "Graphs", RevisionOrder: 2},
				{ID: "t3", Title: "DP", RevisionOrder: 3},
			},
		},
		Questions: []types.Question{
			{ID: "q1", Tags: []string{"Sorting"}},
			{ID: "q2", Tags: []string{"Graphs"}},
			{ID: "q3", Tags: []string{"DP"}},
			{ID: "q4", Tags: []string{"Sorting"}},
		},
		Mastery: map[string]types.MasteryRecord{
			"t1": {TopicID: "t1", Score: 0.9, NextReviewAt: future},
			"t2": {TopicID: "t2", Score: 0.1, NextReviewAt: past},
			"t3": {TopicID: "t3", Score: 0.5, NextReviewAt: past},
		},
	}
}

func TestBuildPracticeSetDueWeakestFirst(t *testing.T) {
	set := BuildPracticeSet(practicePack(), 2, time.Now().UTC())

	if len(set.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(set.Questions))
	}
	// t2 is due with the lowest score, then t3
	if set.Questions[0].ID != "q2" {
		t.Errorf("first question = %s, want q2", set.Questions[0].ID)
	}
	if set.Questions[1].ID != "q3" {
		t.Errorf("second question = %s, want q3", set.Questions[1].ID)
	}
	if len(set.DueTopics) == 0 || set.DueTopics[0] != "Graphs" {
		t.Errorf("dueTopics = %v, want Graphs first", set.DueTopics)
	}
}

func TestBuildPracticeSetDefaultLimitAndDedup(t *testing.T) {
	set := BuildPracticeSet(practicePack(), 0, time.Now().UTC())

	if len(set.Questions) != 4 {
		t.Fatalf("questions = %d, want all 4", len(set.Questions))
	}
	seen := map[string]bool{}
	for _, q := range set.Questions {
		if seen[q.ID] {
			t.Fatalf("duplicate question %s", q.ID)
		}
		seen[q.ID] = true
	}
}
