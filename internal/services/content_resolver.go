package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/types"
)

// ResolvedPlaylist is the ordered lecture list a pipeline run starts from.
type ResolvedPlaylist struct {
	Title    string
	Lectures []types.Lecture
}

// ContentResolver turns free-text input (playlist URL, single video URL, or
// newline-separated list) into lectures with durations.
type ContentResolver interface {
	Resolve(ctx context.Context, input, apiKey string) (*ResolvedPlaylist, error)
}

type youtubeResolver struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewContentResolver(log *logger.Logger) ContentResolver {
	return &youtubeResolver{
		log:        log.With("service", "ContentResolver"),
		baseURL:    "https://www.googleapis.com/youtube/v3",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewContentResolverWithBase is used by tests to point the resolver at a
// stub server.
func NewContentResolverWithBase(log *logger.Logger, baseURL string) ContentResolver {
	return &youtubeResolver{
		log:        log.With("service", "ContentResolver"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var (
	playlistIDPattern = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
	videoIDPatterns   = []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/embed/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{11})`),
		regexp.MustCompile(`^([A-Za-z0-9_-]{11})$`),
	}
)

// ExtractPlaylistID pulls a playlist identifier out of a URL, or "".
func ExtractPlaylistID(input string) string {
	match := playlistIDPattern.FindStringSubmatch(input)
	if len(match) == 2 {
		return match[1]
	}
	return ""
}

// ExtractVideoID pulls a video identifier out of a URL or bare id, or "".
func ExtractVideoID(line string) string {
	line = strings.TrimSpace(line)
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(line); len(match) == 2 {
			return match[1]
		}
	}
	return ""
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// Resolve branches on playlist id first, then multi-line lists, then a
// single video reference. No match is a fatal parse error.
func (r *youtubeResolver) Resolve(ctx context.Context, input, apiKey string) (*ResolvedPlaylist, error) {
	lines := splitLines(input)

	if playlistID := ExtractPlaylistID(input); playlistID != "" {
		return r.resolvePlaylist(ctx, apiKey, playlistID)
	}

	if len(lines) > 1 {
		return r.resolveLines(ctx, apiKey, lines)
	}

	single := ""
	if len(lines) == 1 {
		single = lines[0]
	}
	if videoID := ExtractVideoID(single); videoID != "" {
		return r.resolveLines(ctx, apiKey, []string{single})
	}

	return nil, fmt.Errorf("%w: could not parse playlist or video input", pkgerr.ErrParse)
}

func splitLines(input string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ---- YouTube Data API wire types ----

type ytPlaylistResponse struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytPlaylistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []struct {
		Snippet struct {
			Title      string `json:"title"`
			Position   int    `json:"position"`
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type ytVideosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func (r *youtubeResolver) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("content listing request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("content listing read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("content listing http %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("content listing decode: %w", err)
	}
	return nil
}

func (r *youtubeResolver) resolvePlaylist(ctx context.Context, apiKey, playlistID string) (*ResolvedPlaylist, error) {
	title := "Lecture Playlist"
	var meta ytPlaylistResponse
	query := url.Values{"part": {"snippet"}, "id": {playlistID}, "key": {apiKey}}
	if err := r.getJSON(ctx, "/playlists", query, &meta); err == nil && len(meta.Items) > 0 {
		if t := strings.TrimSpace(meta.Items[0].Snippet.Title); t != "" {
			title = t
		}
	}

	var lectures []types.Lecture
	pageToken := ""
	for {
		query := url.Values{
			"part":       {"snippet"},
			"playlistId": {playlistID},
			"maxResults": {"50"},
			"key":        {apiKey},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var page ytPlaylistItemsResponse
		if err := r.getJSON(ctx, "/playlistItems", query, &page); err != nil {
			return nil, fmt.Errorf("resolve playlist %s: %w", playlistID, err)
		}
		for _, item := range page.Items {
			videoID := item.Snippet.ResourceID.VideoID
			if videoID == "" {
				continue
			}
			lectures = append(lectures, types.Lecture{
				ID:      videoID,
				Title:   item.Snippet.Title,
				URL:     watchURL(videoID),
				VideoID: videoID,
				Order:   len(lectures),
			})
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	if len(lectures) == 0 {
		return nil, fmt.Errorf("%w: playlist %s has no videos", pkgerr.ErrParse, playlistID)
	}

	hydrated, err := r.hydrateLectureDurations(ctx, apiKey, lectures)
	if err != nil {
		return nil, err
	}
	return &ResolvedPlaylist{Title: title, Lectures: hydrated}, nil
}

func (r *youtubeResolver) resolveLines(ctx context.Context, apiKey string, lines []string) (*ResolvedPlaylist, error) {
	var lectures []types.Lecture
	for _, line := range lines {
		videoID := ExtractVideoID(line)
		if videoID == "" {
			continue
		}
		lectures = append(lectures, types.Lecture{
			ID:      videoID,
			Title:   fmt.Sprintf("Lecture %d", len(lectures)+1),
			URL:     watchURL(videoID),
			VideoID: videoID,
			Order:   len(lectures),
		})
	}
	if len(lectures) == 0 {
		return nil, fmt.Errorf("%w: could not parse playlist or video input", pkgerr.ErrParse)
	}

	hydrated, err := r.hydrateLectureDurations(ctx, apiKey, lectures)
	if err != nil {
		return nil, err
	}
	title := "Custom Lecture List"
	if len(hydrated) == 1 {
		title = hydrated[0].Title
	}
	return &ResolvedPlaylist{Title: title, Lectures: hydrated}, nil
}

// hydrateLectureDurations fills durations (and missing titles) via a batched
// videos lookup. Videos absent from the response keep duration 0; the
// blueprint clamps to 1s later.
func (r *youtubeResolver) hydrateLectureDurations(ctx context.Context, apiKey string, lectures []types.Lecture) ([]types.Lecture, error) {
	byID := make(map[string]*types.Lecture, len(lectures))
	ids := make([]string, 0, len(lectures))
	for i := range lectures {
		byID[lectures[i].VideoID] = &lectures[i]
		ids = append(ids, lectures[i].VideoID)
	}

	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}
		query := url.Values{
			"part": {"snippet,contentDetails"},
			"id":   {strings.Join(ids[start:end], ",")},
			"key":  {apiKey},
		}
		var page ytVideosResponse
		if err := r.getJSON(ctx, "/videos", query, &page); err != nil {
			return nil, fmt.Errorf("hydrate durations: %w", err)
		}
		for _, item := range page.Items {
			lecture, ok := byID[item.ID]
			if !ok {
				continue
			}
			lecture.DurationSeconds = ParseISODuration(item.ContentDetails.Duration)
			if t := strings.TrimSpace(item.Snippet.Title); t != "" && strings.HasPrefix(lecture.Title, "Lecture ") {
				lecture.Title = t
			}
		}
	}
	return lectures, nil
}

var isoDurationPattern = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration parses the ISO-8601 subset the videos API returns
// ("PT1H2M3S"). Unparseable input yields 0.
func ParseISODuration(iso string) int {
	match := isoDurationPattern.FindStringSubmatch(strings.TrimSpace(iso))
	if match == nil {
		return 0
	}
	hours, _ := strconv.Atoi(zeroIfEmpty(match[1]))
	minutes, _ := strconv.Atoi(zeroIfEmpty(match[2]))
	seconds, _ := strconv.Atoi(zeroIfEmpty(match[3]))
	return hours*3600 + minutes*60 + seconds
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
