// Package generator holds the text-generation providers used by the
// transformation chain. Providers are plain client objects built once and
// looked up by name through a Registry.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 120 * time.Second

// Provider names.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"
)

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from provider")

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Generator turns a request into raw text. It does not retry or validate.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Registry maps provider names to generators and applies the call budget
// and timeout to every call.
type Registry struct {
	providers map[string]Generator
	budget    *Budget
	timeout   time.Duration
}

// NewRegistry creates an empty registry. A nil budget is unlimited.
func NewRegistry(budget *Budget, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		providers: make(map[string]Generator),
		budget:    budget,
		timeout:   timeout,
	}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, g Generator) {
	r.providers[strings.ToLower(name)] = g
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.providers[strings.ToLower(name)]
	return ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the named provider wrapped with budget and timeout.
func (r *Registry) Get(name string) (Generator, error) {
	name = strings.ToLower(name)
	g, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("generator %q is not configured", name)
	}
	return &bound{name: name, gen: g, budget: r.budget, timeout: r.timeout}, nil
}

// Budget returns the registry's call budget, which may be nil.
func (r *Registry) Budget() *Budget { return r.budget }

// Close releases providers that hold resources.
func (r *Registry) Close() error {
	var errs []error
	for _, g := range r.providers {
		if c, ok := g.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

type bound struct {
	name    string
	gen     Generator
	budget  *Budget
	timeout time.Duration
}

func (b *bound) Generate(ctx context.Context, req Request) (string, error) {
	if err := b.budget.Use(b.name); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	text, err := b.gen.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", b.name, ErrEmptyResponse)
	}
	return text, nil
}
