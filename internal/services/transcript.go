package services

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/types"
)

// TranscriptSource fetches timestamped transcript segments for a video.
// Caching by video id lives in the pipeline, not here.
type TranscriptSource interface {
	Fetch(ctx context.Context, videoID, language string) ([]types.TranscriptSegment, error)
}

type timedTextSource struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

func NewTranscriptSource(log *logger.Logger) TranscriptSource {
	return &timedTextSource{
		log:        log.With("service", "TranscriptSource"),
		baseURL:    "https://video.google.com/timedtext",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewTranscriptSourceWithBase points the source at a stub server in tests.
func NewTranscriptSourceWithBase(log *logger.Logger, baseURL string) TranscriptSource {
	return &timedTextSource{
		log:        log.With("service", "TranscriptSource"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type timedTextDoc struct {
	Texts []struct {
		Start float64 `xml:"start,attr"`
		Dur   float64 `xml:"dur,attr"`
		Body  string  `xml:",chardata"`
	} `xml:"text"`
}

func (t *timedTextSource) Fetch(ctx context.Context, videoID, language string) ([]types.TranscriptSegment, error) {
	if language == "" {
		language = "en"
	}
	query := url.Values{"lang": {language}, "v": {videoID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcript fetch %s: %w", videoID, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transcript read %s: %w", videoID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript http %d for %s", resp.StatusCode, videoID)
	}

	var doc timedTextDoc
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("transcript decode %s: %w", videoID, err)
	}
	if len(doc.Texts) == 0 {
		return nil, fmt.Errorf("no transcript available for %s", videoID)
	}

	segments := make([]types.TranscriptSegment, 0, len(doc.Texts))
	for _, item := range doc.Texts {
		text := strings.TrimSpace(html.UnescapeString(item.Body))
		if text == "" {
			continue
		}
		segments = append(segments, types.TranscriptSegment{
			Start:     item.Start,
			Duration:  item.Dur,
			End:       item.Start + item.Dur,
			Text:      text,
			Timestamp: secondsToTimestamp(item.Start),
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no transcript available for %s", videoID)
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	return segments, nil
}
