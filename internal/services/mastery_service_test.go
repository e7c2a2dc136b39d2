package services

import (
	"context"
	"errors"
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

func gradePack() *types.Pack {
	return &types.Pack{
		ID: "pack_1",
		Blueprint: types.Blueprint{
			Topics: []types.BlueprintTopic{
				{ID: "t1", Title: "Sorting"},
				{ID: "t2", Title: "Graphs"},
			},
		},
		Questions: []types.Question{
			{
				ID: "q1", Type: types.QuestionTypeMCQ, Stem: "Best pivot?",
				Answer: "median", Rationale: "balanced splits", Tags: []string{"Sorting"},
			},
		},
		Mastery: map[string]types.MasteryRecord{
			"t1": {TopicID: "t1", Score: 0.5, Streak: 1},
		},
	}
}

func newMasteryFixture(t *testing.T) (MasteryService, *store.Store) {
	t.Helper()
	st := store.NewMemory()
	if err := st.SetPack(context.Background(), gradePack()); err != nil {
		t.Fatalf("SetPack: %v", err)
	}
	svc, err := NewMasteryService(logger.NewNop(), st)
	if err != nil {
		t.Fatalf("NewMasteryService: %v", err)
	}
	return svc, st
}

func TestGradeCorrectAnswerAdvancesMastery(t *testing.T) {
	svc, st := newMasteryFixture(t)
	ctx := context.Background()

	result, err := svc.Grade(ctx, "pack_1", "q1", "Median")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if !result.Correct {
		t.Error("case-insensitive match should grade correct")
	}
	if result.CorrectAnswer != "median" || result.Explanation != "balanced splits" {
		t.Errorf("result = %+v", result)
	}
	if result.Mastery == nil || result.Mastery.Streak != 2 {
		t.Errorf("mastery = %+v", result.Mastery)
	}
	if result.Mastery.Score <= 0.5 {
		t.Errorf("score = %f, want above prior 0.5", result.Mastery.Score)
	}

	pack, err := st.GetPack(ctx, "pack_1")
	if err != nil {
		t.Fatalf("GetPack: %v", err)
	}
	if pack.Mastery["t1"].Streak != 2 {
		t.Errorf("persisted mastery = %+v", pack.Mastery["t1"])
	}
	// the unrelated topic stays untouched
	if _, ok := pack.Mastery["t2"]; ok {
		t.Error("grading touched an unmatched topic")
	}
}

func TestGradeIncorrectAnswerDecays(t *testing.T) {
	svc, _ := newMasteryFixture(t)

	result, err := svc.Grade(context.Background(), "pack_1", "q1", "first")
	if err != nil {
		t.Fatalf("Grade: %v", err)
	}
	if result.Correct {
		t.Error("wrong answer graded correct")
	}
	if result.Mastery == nil || result.Mastery.Streak != 0 {
		t.Errorf("mastery = %+v", result.Mastery)
	}
	if result.Mastery.Score >= 0.5 {
		t.Errorf("score = %f, want decayed below 0.5", result.Mastery.Score)
	}
}

func TestGradeUnknownQuestion(t *testing.T) {
	svc, _ := newMasteryFixture(t)
	if _, err := svc.Grade(context.Background(), "pack_1", "q_missing", "x"); !errors.Is(err, pkgerr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
