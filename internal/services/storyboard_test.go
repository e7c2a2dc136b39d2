package services

import (
	"testing"

	"github.com/veripack/veripack-backend/internal/types"
)

const sampleSpec = `https://i.ytimg.com/sb/vid123/storyboard3_L$L/$N.jpg?sqp=sig|48#27#100#10#10#0#default#sigA|80#45#100#10#10#10000#M$M#rs$AOn4CLB|160#90#100#5#5#10000#M$M#rs$AOn4CLC`

func TestParseStoryboardSpec(t *testing.T) {
	spec := ParseStoryboardSpec(sampleSpec)
	if spec == nil {
		t.Fatal("expected parsed spec")
	}
	if len(spec.Levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(spec.Levels))
	}
	top := spec.Levels[2]
	if top.Width != 160 || top.Height != 90 || top.Columns != 5 || top.Rows != 5 {
		t.Errorf("level geometry = %+v", top)
	}
	if top.IntervalMs != 10000 {
		t.Errorf("intervalMs = %d, want 10000", top.IntervalMs)
	}
	if top.Signature != "AOn4CLC" {
		t.Errorf("signature = %q", top.Signature)
	}
	if top.Level != 3 {
		t.Errorf("level index = %d, want 3", top.Level)
	}
}

func TestParseStoryboardSpecDecodesEscapes(t *testing.T) {
	escaped := `https:\/\/i.ytimg.com\/sb\/vid\/sb.jpg?a=1&b=2|80#45#10#5#2#10000#M$M#rs$SIG`
	spec := ParseStoryboardSpec(escaped)
	if spec == nil {
		t.Fatal("expected parsed spec")
	}
	if spec.BaseURL != "https://i.ytimg.com/sb/vid/sb.jpg?a=1&b=2" {
		t.Errorf("baseURL = %q", spec.BaseURL)
	}
}

func TestParseStoryboardSpecRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "no-pipes-here", "base|too#few#fields"} {
		if got := ParseStoryboardSpec(in); got != nil {
			t.Errorf("ParseStoryboardSpec(%q) = %+v, want nil", in, got)
		}
	}
}

func TestPickLevel(t *testing.T) {
	spec := ParseStoryboardSpec(sampleSpec)
	level := pickLevel(spec)
	if level == nil {
		t.Fatal("expected a level")
	}
	// widest level with timing data wins; the 48px level has no interval
	if level.Width != 160 {
		t.Errorf("picked width = %d, want 160", level.Width)
	}
}

func TestBuildSprite(t *testing.T) {
	level := types.StoryboardLevel{
		Width:       160,
		Height:      90,
		FrameCount:  100,
		Columns:     5,
		Rows:        5,
		IntervalMs:  10000,
		Name:        "M$M",
		Signature:   "SIG",
		Level:       3,
		URLTemplate: "https://i.ytimg.com/sb/vid/storyboard3_L$L/$N.jpg",
	}

	// 260s / 10s per frame = frame 26; sheet 1, cell 1 (row 0, col 1)
	sprite := BuildSprite(level, 260)
	if sprite.SpriteURL != "https://i.ytimg.com/sb/vid/storyboard3_L3/M1.jpg&rs=SIG" {
		t.Errorf("spriteURL = %q", sprite.SpriteURL)
	}
	if sprite.Row != 0 || sprite.Col != 1 {
		t.Errorf("cell = (%d,%d), want (0,1)", sprite.Row, sprite.Col)
	}

	// beyond the last frame clamps
	sprite = BuildSprite(level, 100000)
	if sprite.Row != 4 || sprite.Col != 4 {
		t.Errorf("clamped cell = (%d,%d), want (4,4)", sprite.Row, sprite.Col)
	}
}

func TestFallbackVisuals(t *testing.T) {
	lecture := types.Lecture{VideoID: "vid123"}
	citations := []types.Citation{
		{Timestamp: "01:00", Snippet: "pivot"},
		{Timestamp: "02:00"},
		{Timestamp: "03:00", Snippet: "extra"},
	}
	visuals := fallbackVisuals(lecture, citations)
	if len(visuals) != 2 {
		t.Fatalf("visuals = %d, want capped at 2", len(visuals))
	}
	if visuals[0].URL != "https://i.ytimg.com/vi/vid123/hqdefault.jpg" {
		t.Errorf("url = %q", visuals[0].URL)
	}
	if visuals[0].Kind != "thumbnail" || visuals[0].Description != "pivot" {
		t.Errorf("visual = %+v", visuals[0])
	}
	if visuals[1].Description != "Keyframe 2" {
		t.Errorf("default description = %q", visuals[1].Description)
	}
}
