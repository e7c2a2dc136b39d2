package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/store"
	"github.com/veripack/veripack-backend/internal/types"
	"github.com/veripack/veripack-backend/internal/utils"
)

const (
	vaultDocCharLimit     = 20000
	vaultContextCharLimit = 20000
)

// VaultService ingests uploaded reference material and surfaces the parts
// relevant to a generation run as prompt context.
type VaultService interface {
	AddDoc(ctx context.Context, name, mimeType string, data []byte) (*types.VaultDoc, error)
	ListDocs(ctx context.Context) ([]types.VaultDoc, error)
	BuildVaultContext(ctx context.Context, query string, docIDs []string) (string, error)
}

type vaultService struct {
	log   *logger.Logger
	store *store.Store
}

func NewVaultService(log *logger.Logger, st *store.Store) (VaultService, error) {
	if st == nil {
		return nil, errNilStore
	}
	return &vaultService{
		log:   log.With("service", "VaultService"),
		store: st,
	}, nil
}

func (s *vaultService) AddDoc(ctx context.Context, name, mimeType string, data []byte) (*types.VaultDoc, error) {
	content, err := ExtractText(name, mimeType, data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", name, err)
	}
	doc := &types.VaultDoc{
		ID:        utils.MakeID("vault"),
		Name:      name,
		Content:   utils.Truncate(content, vaultDocCharLimit),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.SetVaultDoc(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Info("Vault document ingested", "name", name, "chars", len(doc.Content))
	return doc, nil
}

func (s *vaultService) ListDocs(ctx context.Context) ([]types.VaultDoc, error) {
	return s.store.ListVaultDocs(ctx)
}

// BuildVaultContext scores documents by term overlap with the query and
// concatenates the best matches, capped for prompt budgets. A non-empty
// docIDs limits candidates to the requested documents; an empty selection
// yields an empty string, never an error for callers to handle.
func (s *vaultService) BuildVaultContext(ctx context.Context, query string, docIDs []string) (string, error) {
	docs, err := s.store.ListVaultDocs(ctx)
	if err != nil {
		return "", err
	}
	if len(docIDs) > 0 {
		requested := make(map[string]bool, len(docIDs))
		for _, id := range docIDs {
			requested[id] = true
		}
		kept := make([]types.VaultDoc, 0, len(docIDs))
		for _, doc := range docs {
			if requested[doc.ID] {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return "", nil
	}

	terms := queryTerms(query)
	type scoredDoc struct {
		doc   types.VaultDoc
		score int
	}
	scored := make([]scoredDoc, 0, len(docs))
	for _, doc := range docs {
		scored = append(scored, scoredDoc{doc: doc, score: termOverlap(terms, doc.Content)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var b strings.Builder
	for _, entry := range scored {
		if b.Len() >= vaultContextCharLimit {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", entry.doc.Name, entry.doc.Content)
	}
	return utils.Truncate(b.String(), vaultContextCharLimit), nil
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		if len(field) >= 3 {
			terms = append(terms, field)
		}
	}
	return terms
}

func termOverlap(terms []string, content string) int {
	lower := strings.ToLower(content)
	score := 0
	for _, term := range terms {
		score += strings.Count(lower, term)
	}
	return score
}
