package services

import (
	"context"
	"strings"
	"testing"

	"github.com/veripack/veripack-backend/internal/logger"
	"github.com/veripack/veripack-backend/internal/store"
)

func newTestVault(t *testing.T) VaultService {
	t.Helper()
	svc, err := NewVaultService(logger.NewNop(), store.NewMemory())
	if err != nil {
		t.Fatalf("NewVaultService: %v", err)
	}
	return svc
}

func TestVaultAddAndList(t *testing.T) {
	vault := newTestVault(t)
	ctx := context.Background()

	doc, err := vault.AddDoc(ctx, "syllabus.txt", "text/plain", []byte("sorting graphs greedy"))
	if err != nil {
		t.Fatalf("AddDoc: %v", err)
	}
	if doc.ID == "" || !strings.HasPrefix(doc.ID, "vault_") {
		t.Errorf("doc id = %q", doc.ID)
	}
	if doc.Content != "sorting graphs greedy" {
		t.Errorf("content = %q", doc.Content)
	}

	docs, err := vault.ListDocs(ctx)
	if err != nil {
		t.Fatalf("ListDocs: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "syllabus.txt" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestVaultAddDocRejectsUnsupported(t *testing.T) {
	vault := newTestVault(t)
	if _, err := vault.AddDoc(context.Background(), "blob.bin", "application/octet-stream", []byte{0x00, 0x01}); err == nil {
		t.Fatal("expected extraction error")
	}
}

func TestBuildVaultContextRanksByOverlap(t *testing.T) {
	vault := newTestVault(t)
	ctx := context.Background()

	if _, err := vault.AddDoc(ctx, "graphs.txt", "text/plain", []byte("graphs graphs traversal bfs dfs")); err != nil {
		t.Fatalf("AddDoc: %v", err)
	}
	if _, err := vault.AddDoc(ctx, "cooking.txt", "text/plain", []byte("recipes and pasta")); err != nil {
		t.Fatalf("AddDoc: %v", err)
	}

	out, err := vault.BuildVaultContext(ctx, "Graphs lecture BFS", nil)
	if err != nil {
		t.Fatalf("BuildVaultContext: %v", err)
	}
	graphsAt := strings.Index(out, "[graphs.txt]")
	cookingAt := strings.Index(out, "[cooking.txt]")
	if graphsAt == -1 || cookingAt == -1 {
		t.Fatalf("context missing docs:\n%s", out)
	}
	if graphsAt > cookingAt {
		t.Errorf("best-matching doc not first:\n%s", out)
	}
}

func TestBuildVaultContextRestrictsToRequestedDocs(t *testing.T) {
	vault := newTestVault(t)
	ctx := context.Background()

	graphs, err := vault.AddDoc(ctx, "graphs.txt", "text/plain", []byte("graphs traversal bfs dfs"))
	if err != nil {
		t.Fatalf("AddDoc: %v", err)
	}
	if _, err := vault.AddDoc(ctx, "cooking.txt", "text/plain", []byte("recipes and pasta")); err != nil {
		t.Fatalf("AddDoc: %v", err)
	}

	out, err := vault.BuildVaultContext(ctx, "Graphs lecture BFS", []string{graphs.ID})
	if err != nil {
		t.Fatalf("BuildVaultContext: %v", err)
	}
	if !strings.Contains(out, "[graphs.txt]") {
		t.Fatalf("context missing requested doc:\n%s", out)
	}
	if strings.Contains(out, "[cooking.txt]") || strings.Contains(out, "pasta") {
		t.Errorf("context leaks unrequested doc:\n%s", out)
	}

	out, err = vault.BuildVaultContext(ctx, "anything", []string{"vault_missing"})
	if err != nil {
		t.Fatalf("BuildVaultContext: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty for unknown ids", out)
	}
}

func TestBuildVaultContextEmptyVault(t *testing.T) {
	vault := newTestVault(t)
	out, err := vault.BuildVaultContext(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("BuildVaultContext: %v", err)
	}
	if out != "" {
		t.Errorf("out = %q, want empty", out)
	}
}
