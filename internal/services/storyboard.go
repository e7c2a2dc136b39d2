package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
)

// StoryboardService enriches notes with preview frames pulled from the
// video's storyboard sprite sheets. Purely best-effort: every failure path
// degrades to plain thumbnails and BuildVisualReferences never errors.
type StoryboardService interface {
	BuildVisualReferences(ctx context.Context, lecture types.Lecture, citations []types.Citation) []types.VisualReference
}

type storyboardService struct {
	log        *logger.Logger
	store      *store.Store
	watchBase  string
	httpClient *http.Client
}

func NewStoryboardService(log *logger.Logger, st *store.Store) (StoryboardService, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &storyboardService{
		log:        log.With("service", "StoryboardService"),
		store:      st,
		watchBase:  "https://www.youtube.com/watch?v=",
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}, nil
}

var storyboardSpecPattern = regexp.MustCompile(`"playerStoryboardSpecRenderer"\s*:\s*\{"spec":"([^"]+)"\}`)

func decodeSpec(spec string) string {
	spec = strings.ReplaceAll(spec, `\u0026`, "&")
	return strings.ReplaceAll(spec, `\/`, "/")
}

// ParseStoryboardSpec parses the pipe-delimited storyboard spec into levels.
// Returns nil when nothing usable survives.
func ParseStoryboardSpec(spec string) *types.StoryboardSpec {
	clean := decodeSpec(spec)
	parts := strings.Split(clean, "|")
	if len(parts) < 2 {
		return nil
	}
	baseURL := parts[0]
	var levels []types.StoryboardLevel
	for index, entry := range parts[1:] {
		fields := strings.Split(entry, "#")
		if len(fields) < 8 {
			continue
		}
		width, errW := strconv.Atoi(fields[0])
		height, errH := strconv.Atoi(fields[1])
		frameCount, errF := strconv.Atoi(fields[2])
		columns, errC := strconv.Atoi(fields[3])
		rows, errR := strconv.Atoi(fields[4])
		intervalMs, _ := strconv.Atoi(fields[5])
		if errW != nil || errH != nil || errF != nil || errC != nil || errR != nil {
			continue
		}
		levels = append(levels, types.StoryboardLevel{
			Width:       width,
			Height:      height,
			FrameCount:  frameCount,
			Columns:     columns,
			Rows:        rows,
			IntervalMs:  intervalMs,
			Name:        fields[6],
			Signature:   strings.TrimPrefix(fields[7], "rs$"),
			Level:       index + 1,
			URLTemplate: baseURL,
		})
	}
	if len(levels) == 0 {
		return nil
	}
	return &types.StoryboardSpec{BaseURL: baseURL, Levels: levels}
}

func (s *storyboardService) fetchSpec(ctx context.Context, videoID string) *types.StoryboardSpec {
	if cached, err := s.store.GetStoryboard(ctx, videoID); err == nil {
		return cached
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.watchBase+videoID, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121 Safari/537.36")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Debug("Storyboard fetch failed", "videoID", videoID, "error", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil
	}
	match := storyboardSpecPattern.FindStringSubmatch(string(raw))
	if len(match) != 2 {
		return nil
	}
	spec := ParseStoryboardSpec(match[1])
	if spec != nil {
		if err := s.store.SetStoryboard(ctx, videoID, spec); err != nil {
			s.log.Warn("Storyboard cache write failed", "videoID", videoID, "error", err)
		}
	}
	return spec
}

// pickLevel prefers the widest level with real timing data, falling back to
// the widest overall.
func pickLevel(spec *types.StoryboardSpec) *types.StoryboardLevel {
	if len(spec.Levels) == 0 {
		return nil
	}
	sorted := append([]types.StoryboardLevel{}, spec.Levels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Width > sorted[j].Width })
	for i := range sorted {
		if sorted[i].IntervalMs > 0 && sorted[i].Width >= 80 {
			return &sorted[i]
		}
	}
	return &sorted[0]
}

// BuildSprite locates the sheet and cell covering a timestamp.
func BuildSprite(level types.StoryboardLevel, timestampSeconds int) types.VisualSprite {
	intervalMs := level.IntervalMs
	if intervalMs < 1000 {
		intervalMs = 1000
	}
	frameIndex := timestampSeconds * 1000 / intervalMs
	if maxFrame := level.FrameCount - 1; frameIndex > maxFrame {
		frameIndex = maxFrame
	}
	if frameIndex < 0 {
		frameIndex = 0
	}
	framesPerSheet := level.Columns * level.Rows
	if framesPerSheet < 1 {
		framesPerSheet = 1
	}
	sheetIndex := frameIndex / framesPerSheet
	position := frameIndex % framesPerSheet
	columns := level.Columns
	if columns < 1 {
		columns = 1
	}

	spriteURL := strings.Replace(level.URLTemplate, "$L", strconv.Itoa(level.Level), 1)
	name := strings.Replace(level.Name, "$M", strconv.Itoa(sheetIndex), 1)
	spriteURL = strings.Replace(spriteURL, "$N", name, 1)
	if level.Signature != "" {
		spriteURL += "&rs=" + level.Signature
	}

	return types.VisualSprite{
		SpriteURL: spriteURL,
		Width:     level.Width,
		Height:    level.Height,
		Columns:   level.Columns,
		Rows:      level.Rows,
		Col:       position % columns,
		Row:       position / columns,
	}
}

func fallbackVisuals(lecture types.Lecture, citations []types.Citation) []types.VisualReference {
	baseURL := "https://i.ytimg.com/vi/" + lecture.VideoID + "/hqdefault.jpg"
	visuals := make([]types.VisualReference, 0, 2)
	for i, citation := range citations {
		if i >= 2 {
			break
		}
		description := citation.Snippet
		if description == "" {
			description = fmt.Sprintf("Keyframe %d", i+1)
		}
		visuals = append(visuals, types.VisualReference{
			URL:         baseURL,
			Timestamp:   citation.Timestamp,
			Description: description,
			Kind:        "thumbnail",
		})
	}
	return visuals
}

func (s *storyboardService) BuildVisualReferences(ctx context.Context, lecture types.Lecture, citations []types.Citation) []types.VisualReference {
	spec := s.fetchSpec(ctx, lecture.VideoID)
	if spec == nil {
		return fallbackVisuals(lecture, citations)
	}
	level := pickLevel(spec)
	if level == nil {
		return fallbackVisuals(lecture, citations)
	}

	visuals := make([]types.VisualReference, 0, 2)
	for i, citation := range citations {
		if i >= 2 {
			break
		}
		sprite := BuildSprite(*level, timestampToSeconds(citation.Timestamp))
		description := citation.Snippet
		if description == "" {
			description = fmt.Sprintf("Keyframe %d", i+1)
		}
		visuals = append(visuals, types.VisualReference{
			URL:         sprite.SpriteURL,
			Timestamp:   citation.Timestamp,
			Description: description,
			Kind:        "storyboard",
			Sprite:      &sprite,
		})
	}
	return visuals
}
