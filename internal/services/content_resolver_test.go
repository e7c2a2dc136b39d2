package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
)

func TestExtractPlaylistID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.youtube.com/playlist?list=PLabc_123-XYZ", "PLabc_123-XYZ"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLxyz", "PLxyz"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", ""},
		{"just some text", ""},
	}
	for _, tc := range cases {
		if got := ExtractPlaylistID(tc.in); got != tc.want {
			t.Errorf("ExtractPlaylistID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"  dQw4w9WgXcQ  ", "dQw4w9WgXcQ"},
		{"tooshort", ""},
		{"https://example.com/watch?v=short", ""},
	}
	for _, tc := range cases {
		if got := ExtractVideoID(tc.in); got != tc.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseISODuration(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"PT1H2M3S", 3723},
		{"PT15M", 900},
		{"PT45S", 45},
		{"PT2H", 7200},
		{" PT1M30S ", 90},
		{"P1DT1H", 0},
		{"garbage", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := ParseISODuration(tc.in); got != tc.want {
			t.Errorf("ParseISODuration(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSplitLines(t *testing.T) {
	got := splitLines("a\r\n\n  b  \n\n")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitLines = %v", got)
	}
}

func fakeYouTubeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/playlists", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"snippet": map[string]any{"title": "Algorithms 101"}},
			},
		})
	})
	mux.HandleFunc("/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"snippet": map[string]any{
					"title": "Lecture One", "position": 0,
					"resourceId": map[string]any{"videoId": "aaaaaaaaaaa"},
				}},
				{"snippet": map[string]any{
					"title": "Lecture Two", "position": 1,
					"resourceId": map[string]any{"videoId": "bbbbbbbbbbb"},
				}},
			},
		})
	})
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":             "aaaaaaaaaaa",
					"snippet":        map[string]any{"title": "Lecture One"},
					"contentDetails": map[string]any{"duration": "PT10M"},
				},
				{
					"id":             "bbbbbbbbbbb",
					"snippet":        map[string]any{"title": "Lecture Two"},
					"contentDetails": map[string]any{"duration": "PT5M"},
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestResolvePlaylist(t *testing.T) {
	server := fakeYouTubeServer(t)
	resolver := NewContentResolverWithBase(logger.NewNop(), server.URL)

	resolved, err := resolver.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PLtest", "key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Title != "Algorithms 101" {
		t.Errorf("title = %q", resolved.Title)
	}
	if len(resolved.Lectures) != 2 {
		t.Fatalf("lectures = %d, want 2", len(resolved.Lectures))
	}
	first := resolved.Lectures[0]
	if first.VideoID != "aaaaaaaaaaa" || first.DurationSeconds != 600 || first.Order != 0 {
		t.Errorf("first lecture = %+v", first)
	}
	if first.URL != "https://www.youtube.com/watch?v=aaaaaaaaaaa" {
		t.Errorf("url = %q", first.URL)
	}
}

func TestResolveVideoLines(t *testing.T) {
	server := fakeYouTubeServer(t)
	resolver := NewContentResolverWithBase(logger.NewNop(), server.URL)

	input := "https://youtu.be/aaaaaaaaaaa\nhttps://youtu.be/bbbbbbbbbbb"
	resolved, err := resolver.Resolve(context.Background(), input, "key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Title != "Custom Lecture List" {
		t.Errorf("title = %q", resolved.Title)
	}
	// placeholder titles give way to the API titles
	if resolved.Lectures[1].Title != "Lecture Two" {
		t.Errorf("second title = %q", resolved.Lectures[1].Title)
	}
}

func TestResolveSingleVideoTitlesPack(t *testing.T) {
	server := fakeYouTubeServer(t)
	resolver := NewContentResolverWithBase(logger.NewNop(), server.URL)

	resolved, err := resolver.Resolve(context.Background(), "https://youtu.be/aaaaaaaaaaa", "key")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.Title != "Lecture One" {
		t.Errorf("title = %q, want the single video title", resolved.Title)
	}
}

func TestResolveUnparseableInput(t *testing.T) {
	resolver := NewContentResolverWithBase(logger.NewNop(), "http://127.0.0.1:0")
	_, err := resolver.Resolve(context.Background(), "not a video at all", "key")
	if !errors.Is(err, pkgerr.ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}
