package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/types"
)

func TestStripHTML(t *testing.T) {
	in := `<html><head><title>Syllabus</title><style>p{color:red}</style>
		<script>alert("x")</script></head>
		<body><p>Sorting   and</p><p>graphs</p></body></html>`
	got := stripHTML(in)
	if strings.Contains(got, "alert") || strings.Contains(got, "color") {
		t.Errorf("script/style leaked: %q", got)
	}
	if !strings.Contains(got, "Sorting and") || !strings.Contains(got, "graphs") {
		t.Errorf("text lost: %q", got)
	}
}

func TestExtractTitle(t *testing.T) {
	if got := extractTitle("<html><title> Past Papers </title></html>"); got != "Past Papers" {
		t.Errorf("title = %q", got)
	}
	if got := extractTitle("<html><body>no title</body></html>"); got != "Source" {
		t.Errorf("fallback title = %q", got)
	}
}

func TestFetchSourcesFallsBack(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><title>Live Page</title><body>exam topics here</body></html>")
	}))
	defer live.Close()

	svc, err := NewResearchService(logger.NewNop(), newFakeGenAI())
	if err != nil {
		t.Fatalf("NewResearchService: %v", err)
	}

	deadURL := "http://127.0.0.1:0/dead"
	fallback := []types.ResearchSource{{Title: "Cached", URL: deadURL, Excerpt: "snippet"}}
	sources := svc.FetchSources(context.Background(), []string{live.URL, deadURL}, fallback)

	if len(sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(sources))
	}
	if sources[0].Title != "Live Page" || !strings.Contains(sources[0].Excerpt, "exam topics here") {
		t.Errorf("live source = %+v", sources[0])
	}
	if sources[1].Title != "Cached" || sources[1].Excerpt != "snippet" {
		t.Errorf("fallback source = %+v", sources[1])
	}
}

func TestSearchSources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "serper-key" {
			t.Errorf("api key header = %q", r.Header.Get("X-API-KEY"))
		}
		fmt.Fprint(w, `{"organic":[
			{"title":"Past papers","link":"https://a.example","snippet":"papers"},
			{"title":"","link":"https://b.example","snippet":"untitled"},
			{"title":"No link","link":"","snippet":"skipped"},
			{"title":"Third","link":"https://c.example","snippet":"third"}
		]}`)
	}))
	defer server.Close()
	t.Setenv("SERPER_SEARCH_URL", server.URL)

	svc, err := NewResearchService(logger.NewNop(), newFakeGenAI())
	if err != nil {
		t.Fatalf("NewResearchService: %v", err)
	}
	sources, err := svc.SearchSources(context.Background(), "algorithms syllabus", "serper-key", 2)
	if err != nil {
		t.Fatalf("SearchSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %d, want capped at 2", len(sources))
	}
	if sources[0].URL != "https://a.example" {
		t.Errorf("first source = %+v", sources[0])
	}
	if sources[1].Title != "Source" {
		t.Errorf("untitled source should default: %+v", sources[1])
	}
}

func TestBuildReport(t *testing.T) {
	genai := newFakeGenAI()
	genai.respondJSON("research_report",
		`{"summary":"Focus on sorting proofs.","sources":[{"title":"Past papers","url":"https://a.example","excerpt":"papers"}]}`)

	svc, err := NewResearchService(logger.NewNop(), genai)
	if err != nil {
		t.Fatalf("NewResearchService: %v", err)
	}
	report, err := svc.BuildReport(context.Background(), "Algorithms",
		[]types.ResearchSource{{Title: "Past papers", URL: "https://a.example", Excerpt: "papers"}}, "key", "model")
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Summary != "Focus on sorting proofs." || len(report.Sources) != 1 {
		t.Errorf("report = %+v", report)
	}
	if genai.callCount("research_report") != 1 {
		t.Errorf("calls = %d, want 1", genai.callCount("research_report"))
	}
}
