package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// fakeGenAI dispatches on SchemaName so each test scripts exactly the
// responses it needs, and counts calls per schema.
type fakeGenAI struct {
	mu        sync.Mutex
	responses map[string]func(req GenAIRequest) (string, error)
	calls     map[string]int
}

func newFakeGenAI() *fakeGenAI {
	return &fakeGenAI{
		responses: make(map[string]func(req GenAIRequest) (string, error)),
		calls:     make(map[string]int),
	}
}

func (f *fakeGenAI) respond(schemaName string, fn func(req GenAIRequest) (string, error)) {
	f.responses[schemaName] = fn
}

func (f *fakeGenAI) respondJSON(schemaName, body string) {
	f.respond(schemaName, func(GenAIRequest) (string, error) { return body, nil })
}

func (f *fakeGenAI) callCount(schemaName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[schemaName]
}

func (f *fakeGenAI) dispatch(req GenAIRequest) (string, error) {
	f.mu.Lock()
	f.calls[req.SchemaName]++
	fn := f.responses[req.SchemaName]
	f.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("no scripted response for schema %q", req.SchemaName)
	}
	return fn(req)
}

func (f *fakeGenAI) GenerateText(_ context.Context, req GenAIRequest) (string, error) {
	return f.dispatch(req)
}

func (f *fakeGenAI) GenerateJSON(_ context.Context, req GenAIRequest, out any) error {
	body, err := f.dispatch(req)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeGenAI) StreamText(_ context.Context, req GenAIRequest, sink func(chunk string) error) error {
	body, err := f.dispatch(req)
	if err != nil {
		return err
	}
	return sink(body)
}
