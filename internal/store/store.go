// Package store persists jobs, packs, drafts, transcripts, vault docs,
// storyboards and coach sessions. All backends are last-write-wins keyed
// puts; a job id is only ever driven by one pipeline run at a time and
// transcripts are immutable per video, so no locking is needed beyond what
// each backend does internally.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/veripack/veripack-backend/internal/config"
	"github.com/veripack/veripack-backend/internal/logger"
	pkgerr "github.com/veripack/veripack-backend/internal/pkg/errors"
	"github.com/veripack/veripack-backend/internal/types"
)

const (
	bucketJobs         = "job"
	bucketPacks        = "pack"
	bucketDrafts       = "draft"
	bucketTranscripts  = "transcript"
	bucketVault        = "vault"
	bucketStoryboards  = "storyboard"
	bucketCoachSession = "coach"
)

// kv is the minimal contract a backend has to satisfy.
type kv interface {
	get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	set(ctx context.Context, bucket, key string, val []byte) error
	delete(ctx context.Context, bucket, key string) (bool, error)
	list(ctx context.Context, bucket string) ([][]byte, error)
}

type Store struct {
	kv kv
}

// New picks a backend from config. Unknown backends are an error rather than
// a silent fallback.
func New(cfg config.StoreConfig, log *logger.Logger) (*Store, error) {
	switch cfg.Backend {
	case "memory":
		return &Store{kv: newMemoryKV()}, nil
	case "file", "":
		return &Store{kv: newFileKV(cfg.FilePath)}, nil
	case "redis":
		backend, err := newRedisKV(cfg, log)
		if err != nil {
			return nil, err
		}
		return &Store{kv: backend}, nil
	case "postgres":
		backend, err := newPostgresKV(cfg, log)
		if err != nil {
			return nil, err
		}
		return &Store{kv: backend}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// NewMemory returns a memory-backed store. Used in tests.
func NewMemory() *Store {
	return &Store{kv: newMemoryKV()}
}

func getJSON[T any](ctx context.Context, s *Store, bucket, key string) (*T, error) {
	raw, ok, err := s.kv.get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", bucket, key, pkgerr.ErrNotFound)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", bucket, key, err)
	}
	return &out, nil
}

func setJSON(ctx context.Context, s *Store, bucket, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", bucket, key, err)
	}
	return s.kv.set(ctx, bucket, key, raw)
}

// ---- Jobs ----

func (s *Store) GetJob(ctx context.Context, jobID string) (*types.JobStatus, error) {
	return getJSON[types.JobStatus](ctx, s, bucketJobs, jobID)
}

func (s *Store) SetJob(ctx context.Context, job *types.JobStatus) error {
	return setJSON(ctx, s, bucketJobs, job.ID, job)
}

// UpdateJob applies a mutation to the current snapshot and writes it back,
// stamping UpdatedAt. Get-merge-set, last write wins.
func (s *Store) UpdateJob(ctx context.Context, jobID string, apply func(*types.JobStatus)) (*types.JobStatus, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	apply(job)
	job.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := s.SetJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ---- Packs ----

func (s *Store) GetPack(ctx context.Context, packID string) (*types.Pack, error) {
	return getJSON[types.Pack](ctx, s, bucketPacks, packID)
}

func (s *Store) SetPack(ctx context.Context, pack *types.Pack) error {
	return setJSON(ctx, s, bucketPacks, pack.ID, pack)
}

func (s *Store) DeletePack(ctx context.Context, packID string) (bool, error) {
	return s.kv.delete(ctx, bucketPacks, packID)
}

func (s *Store) ListPacks(ctx context.Context) ([]types.PackSummary, error) {
	raws, err := s.kv.list(ctx, bucketPacks)
	if err != nil {
		return nil, err
	}
	summaries := make([]types.PackSummary, 0, len(raws))
	for _, raw := range raws {
		var pack types.Pack
		if err := json.Unmarshal(raw, &pack); err != nil {
			continue
		}
		summaries = append(summaries, types.PackSummary{
			ID:        pack.ID,
			Title:     pack.Title,
			CreatedAt: pack.CreatedAt,
			Input:     pack.Input,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt > summaries[j].CreatedAt
	})
	return summaries, nil
}

// ---- Drafts ----

func (s *Store) GetDraft(ctx context.Context, jobID string) (*types.PackDraft, error) {
	return getJSON[types.PackDraft](ctx, s, bucketDrafts, jobID)
}

func (s *Store) SetDraft(ctx context.Context, draft *types.PackDraft) error {
	return setJSON(ctx, s, bucketDrafts, draft.JobID, draft)
}

func (s *Store) DeleteDraft(ctx context.Context, jobID string) (bool, error) {
	return s.kv.delete(ctx, bucketDrafts, jobID)
}

// ---- Transcripts (cached by video id, immutable once fetched) ----

func (s *Store) GetTranscript(ctx context.Context, videoID string) ([]types.TranscriptSegment, error) {
	segments, err := getJSON[[]types.TranscriptSegment](ctx, s, bucketTranscripts, videoID)
	if err != nil {
		return nil, err
	}
	return *segments, nil
}

func (s *Store) SetTranscript(ctx context.Context, videoID string, segments []types.TranscriptSegment) error {
	return setJSON(ctx, s, bucketTranscripts, videoID, segments)
}

// ---- Vault docs ----

func (s *Store) GetVaultDoc(ctx context.Context, docID string) (*types.VaultDoc, error) {
	return getJSON[types.VaultDoc](ctx, s, bucketVault, docID)
}

func (s *Store) SetVaultDoc(ctx context.Context, doc *types.VaultDoc) error {
	return setJSON(ctx, s, bucketVault, doc.ID, doc)
}

func (s *Store) ListVaultDocs(ctx context.Context) ([]types.VaultDoc, error) {
	raws, err := s.kv.list(ctx, bucketVault)
	if err != nil {
		return nil, err
	}
	docs := make([]types.VaultDoc, 0, len(raws))
	for _, raw := range raws {
		var doc types.VaultDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt > docs[j].CreatedAt })
	return docs, nil
}

// ---- Storyboards ----

func (s *Store) GetStoryboard(ctx context.Context, videoID string) (*types.StoryboardSpec, error) {
	return getJSON[types.StoryboardSpec](ctx, s, bucketStoryboards, videoID)
}

func (s *Store) SetStoryboard(ctx context.Context, videoID string, spec *types.StoryboardSpec) error {
	return setJSON(ctx, s, bucketStoryboards, videoID, spec)
}

// ---- Coach sessions ----

func (s *Store) GetCoachSession(ctx context.Context, sessionID string) (*types.CoachSession, error) {
	return getJSON[types.CoachSession](ctx, s, bucketCoachSession, sessionID)
}

func (s *Store) SetCoachSession(ctx context.Context, session *types.CoachSession) error {
	return setJSON(ctx, s, bucketCoachSession, session.ID, session)
}

func (s *Store) DeleteCoachSession(ctx context.Context, sessionID string) (bool, error) {
	return s.kv.delete(ctx, bucketCoachSession, sessionID)
}
