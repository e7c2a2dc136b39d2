package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileKV keeps the whole store in one JSON document on disk, read-modify-write
// under a process-wide mutex. Suited to single-node deployments.
type fileKV struct {
	mu   sync.Mutex
	path string
}

func newFileKV(path string) *fileKV {
	if path == "" {
		path = filepath.Join("data", "store.json")
	}
	return &fileKV{path: path}
}

type fileShape map[string]map[string]json.RawMessage

func (f *fileKV) read() (fileShape, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileShape{}, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}
	var shape fileShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("decode store file: %w", err)
	}
	if shape == nil {
		shape = fileShape{}
	}
	return shape, nil
}

func (f *fileKV) write(shape fileShape) error {
	raw, err := json.MarshalIndent(shape, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write store file: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *fileKV) get(_ context.Context, bucket, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shape, err := f.read()
	if err != nil {
		return nil, false, err
	}
	raw, ok := shape[bucket][key]
	if !ok {
		return nil, false, nil
	}
	return raw, true, nil
}

func (f *fileKV) set(_ context.Context, bucket, key string, val []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	shape, err := f.read()
	if err != nil {
		return err
	}
	if shape[bucket] == nil {
		shape[bucket] = make(map[string]json.RawMessage)
	}
	shape[bucket][key] = json.RawMessage(val)
	return f.write(shape)
}

func (f *fileKV) delete(_ context.Context, bucket, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shape, err := f.read()
	if err != nil {
		return false, err
	}
	if _, ok := shape[bucket][key]; !ok {
		return false, nil
	}
	delete(shape[bucket], key)
	return true, f.write(shape)
}

func (f *fileKV) list(_ context.Context, bucket string) ([][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	shape, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(shape[bucket]))
	for _, raw := range shape[bucket] {
		out = append(out, raw)
	}
	return out, nil
}
