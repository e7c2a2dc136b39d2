package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/store"
)

func TestCoachRespondStreamsAndPersists(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.SetPack(ctx, coachPack()); err != nil {
		t.Fatalf("SetPack: %v", err)
	}

	genai := newFakeGenAI()
	genai.respond("coach_turn", func(req GenAIRequest) (string, error) {
		if !strings.Contains(req.System, "VeriCoach") {
			t.Errorf("system prompt = %q", req.System)
		}
		return "Start with the pivot invariant.", nil
	})

	research, err := NewResearchService(logger.NewNop(), genai)
	if err != nil {
		t.Fatalf("NewResearchService: %v", err)
	}
	coach, err := NewCoachService(logger.NewNop(), st, genai, research)
	if err != nil {
		t.Fatalf("NewCoachService: %v", err)
	}

	var streamed strings.Builder
	session, err := coach.Respond(ctx, CoachRequest{
		PackID:  "pack_1",
		APIKey:  "key",
		Message: "where do I start?",
	}, "model", func(chunk string) error {
		streamed.WriteString(chunk)
		return nil
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if streamed.String() != "Start with the pivot invariant." {
		t.Errorf("streamed = %q", streamed.String())
	}
	if session.Mode != CoachModeCoach {
		t.Errorf("mode = %q, want default coach", session.Mode)
	}
	if len(session.Turns) != 2 || session.Turns[0].Role != "user" || session.Turns[1].Content != "Start with the pivot invariant." {
		t.Errorf("turns = %+v", session.Turns)
	}

	persisted, err := st.GetCoachSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetCoachSession: %v", err)
	}
	if len(persisted.Turns) != 2 {
		t.Errorf("persisted turns = %d", len(persisted.Turns))
	}
}

func TestCoachRespondContinuesSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.SetPack(ctx, coachPack()); err != nil {
		t.Fatalf("SetPack: %v", err)
	}

	genai := newFakeGenAI()
	var sawHistory bool
	genai.respond("coach_turn", func(req GenAIRequest) (string, error) {
		sawHistory = strings.Contains(req.Prompt, "User: where do I start?")
		return "Next, practice partitioning.", nil
	})

	research, err := NewResearchService(logger.NewNop(), genai)
	if err != nil {
		t.Fatalf("NewResearchService: %v", err)
	}
	coach, err := NewCoachService(logger.NewNop(), st, genai, research)
	if err != nil {
		t.Fatalf("NewCoachService: %v", err)
	}
	discard := func(string) error { return nil }

	first, err := coach.Respond(ctx, CoachRequest{PackID: "pack_1", APIKey: "key", Message: "where do I start?"}, "model", discard)
	if err != nil {
		t.Fatalf("first Respond: %v", err)
	}
	second, err := coach.Respond(ctx, CoachRequest{PackID: "pack_1", APIKey: "key", Message: "what next?", SessionID: first.ID}, "model", discard)
	if err != nil {
		t.Fatalf("second Respond: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("session ids differ: %s vs %s", second.ID, first.ID)
	}
	if len(second.Turns) != 4 {
		t.Errorf("turns = %d, want 4", len(second.Turns))
	}
	if !sawHistory {
		t.Error("second prompt missing prior conversation")
	}
}

func TestCoachAssistModePullsReferences(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.SetPack(ctx, coachPack()); err != nil {
		t.Fatalf("SetPack: %v", err)
	}

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>Graph Notes</title><body>adjacency lists beat matrices for sparse graphs</body></html>")
	}))
	defer page.Close()

	genai := newFakeGenAI()
	var sawExcerpt bool
	genai.respond("coach_turn", func(req GenAIRequest) (string, error) {
		sawExcerpt = strings.Contains(req.Prompt, "Reference excerpts:") &&
			strings.Contains(req.Prompt, "adjacency lists")
		return "See the excerpt above.", nil
	})

	research, err := NewResearchService(logger.NewNop(), genai)
	if err != nil {
		t.Fatalf("NewResearchService: %v", err)
	}
	coach, err := NewCoachService(logger.NewNop(), st, genai, research)
	if err != nil {
		t.Fatalf("NewCoachService: %v", err)
	}

	_, err = coach.Respond(ctx, CoachRequest{
		PackID:     "pack_1",
		APIKey:     "key",
		Message:    "summarize this page",
		Mode:       CoachModeAssist,
		SourceURLs: []string{page.URL},
	}, "model", func(string) error { return nil })
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !sawExcerpt {
		t.Error("assist prompt missing fetched reference excerpt")
	}
}
