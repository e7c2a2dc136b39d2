package services

import (
	"context"
	"errors"
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

func remediationPack() *types.Pack {
	return &types.Pack{
		ID: "pack_1",
		Blueprint: types.Blueprint{
			Topics: []types.BlueprintTopic{
				{ID: "t1", Title: "Sorting"},
				{ID: "t2", Title: "Graphs"},
				{ID: "t3", Title: "DP"},
			},
		},
		Notes: []types.NoteDocument{
			{LectureTitle: "Graphs", Summary: "BFS and DFS.", KeyTakeaways: []string{"visit order"},
				Citations: []types.Citation{{Timestamp: "02:00", URL: "https://example.com&t=120s"}}},
		},
		Questions: []types.Question{
			{ID: "q1", Tags: []string{"Sorting"}},
			{ID: "q2", Tags: []string{"Graphs"}},
		},
		Mastery: map[string]types.MasteryRecord{
			"t1": {TopicID: "t1", Score: 0.9},
			"t2": {TopicID: "t2", Score: 0.2},
			"t3": {TopicID: "t3", Score: 0.5},
		},
	}
}

func newRemediationFixture(t *testing.T, genai *fakeGenAI) RemediationService {
	t.Helper()
	st := store.NewMemory()
	if err := st.SetPack(context.Background(), remediationPack()); err != nil {
		t.Fatalf("SetPack: %v", err)
	}
	svc, err := NewRemediationService(logger.NewNop(), st, genai)
	if err != nil {
		t.Fatalf("NewRemediationService: %v", err)
	}
	return svc
}

func TestSelectRemediationTopics(t *testing.T) {
	pack := remediationPack()

	t.Run("explicit topics win", func(t *testing.T) {
		topics := selectRemediationTopics(pack, RemediationRequest{Topics: []string{"sorting", "t3"}}, 5)
		if len(topics) != 2 || topics[0].ID != "t1" || topics[1].ID != "t3" {
			t.Errorf("topics = %+v", topics)
		}
	})

	t.Run("missed questions map to their topics", func(t *testing.T) {
		topics := selectRemediationTopics(pack, RemediationRequest{IncorrectQuestionIDs: []string{"q2"}}, 5)
		if len(topics) != 1 || topics[0].ID != "t2" {
			t.Errorf("topics = %+v", topics)
		}
	})

	t.Run("falls back to weakest mastery", func(t *testing.T) {
		topics := selectRemediationTopics(pack, RemediationRequest{}, 2)
		if len(topics) != 2 || topics[0].ID != "t2" || topics[1].ID != "t3" {
			t.Errorf("topics = %+v", topics)
		}
	})
}

func TestBuildPlan(t *testing.T) {
	genai := newFakeGenAI()
	genai.respond("remediation_advice", func(GenAIRequest) (string, error) {
		return "Redo the traversal drills.", nil
	})
	svc := newRemediationFixture(t, genai)

	items, err := svc.BuildPlan(context.Background(), RemediationRequest{
		PackID: "pack_1",
		APIKey: "key",
		Topics: []string{"Graphs"},
	}, "model")
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	item := items[0]
	if item.TopicID != "t2" || item.Advice != "Redo the traversal drills." {
		t.Errorf("item = %+v", item)
	}
	if len(item.QuestionIDs) != 1 || item.QuestionIDs[0] != "q2" {
		t.Errorf("questionIds = %v", item.QuestionIDs)
	}
	if len(item.Citations) != 1 || item.Citations[0].Timestamp != "02:00" {
		t.Errorf("citations = %+v", item.Citations)
	}
}

func TestBuildPlanAdviceFallsBack(t *testing.T) {
	genai := newFakeGenAI()
	genai.respond("remediation_advice", func(GenAIRequest) (string, error) {
		return "", errors.New("model unavailable")
	})
	svc := newRemediationFixture(t, genai)

	items, err := svc.BuildPlan(context.Background(), RemediationRequest{
		PackID: "pack_1",
		APIKey: "key",
		Topics: []string{"DP"},
	}, "model")
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if items[0].Advice != "Review DP with the lecture notes and key takeaways." {
		t.Errorf("advice = %q", items[0].Advice)
	}
}
