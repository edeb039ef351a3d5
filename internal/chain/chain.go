// Package chain runs the four sequential generative stages. Each stage's
// output goes through its Parse gate before the next stage may start.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deusflow/technews/internal/generator"
	"github.com/deusflow/technews/internal/logger"
	"github.com/deusflow/technews/internal/news"
	"github.com/deusflow/technews/internal/retry"
)

// Stage names, in execution order.
const (
	StageStructuring  = "structuring"
	StageNarrative    = "narrative"
	StageCondensation = "condensation"
	StagePresentation = "presentation"
)

// Stages lists the stage names in execution order.
var Stages = []string{StageStructuring, StageNarrative, StageCondensation, StagePresentation}

// StageSettings configures one stage.
type StageSettings struct {
	Provider    string       `yaml:"provider" toml:"provider"`
	Model       string       `yaml:"model" toml:"model"`
	Temperature float32      `yaml:"temperature" toml:"temperature"`
	MaxTokens   int          `yaml:"max_tokens" toml:"max_tokens"`
	System      string       `yaml:"system" toml:"system"`
	Retry       retry.Policy `yaml:"retry" toml:"retry"`
}

// Settings configures the whole chain.
type Settings struct {
	Structuring  StageSettings `yaml:"structuring" toml:"structuring"`
	Narrative    StageSettings `yaml:"narrative" toml:"narrative"`
	Condensation StageSettings `yaml:"condensation" toml:"condensation"`
	Presentation StageSettings `yaml:"presentation" toml:"presentation"`
}

// DefaultSettings returns 3 attempts per stage, 5s backoff for structuring
// and 3s for the rest.
func DefaultSettings() Settings {
	return Settings{
		Structuring: StageSettings{Provider: generator.ProviderDeepSeek, Model: "deepseek-chat", Temperature: 0.7, MaxTokens: 8192,
			Retry: retry.Policy{MaxAttempts: 3, Delay: 5 * time.Second}},
		Narrative: StageSettings{Provider: generator.ProviderOpenAI, Model: "chatgpt-4o-latest", Temperature: 0.7,
			Retry: retry.Policy{MaxAttempts: 3, Delay: 3 * time.Second}},
		Condensation: StageSettings{Provider: generator.ProviderOpenAI, Model: "chatgpt-4o-latest", Temperature: 0.7,
			Retry: retry.Policy{MaxAttempts: 3, Delay: 3 * time.Second}},
		Presentation: StageSettings{Provider: generator.ProviderDeepSeek, Model: "deepseek-chat", Temperature: 0.3, MaxTokens: 8192,
			Retry: retry.Policy{MaxAttempts: 3, Delay: 3 * time.Second}},
	}
}

// For returns the settings of the named stage.
func (s Settings) For(stage string) StageSettings {
	switch stage {
	case StageStructuring:
		return s.Structuring
	case StageNarrative:
		return s.Narrative
	case StageCondensation:
		return s.Condensation
	case StagePresentation:
		return s.Presentation
	}
	return StageSettings{}
}

// Providers returns the distinct providers the stages use, in stage order.
func (s Settings) Providers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, stage := range Stages {
		p := s.For(stage).Provider
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// Input is what the chain transforms.
type Input struct {
	Date  string
	Items []news.ScoredItem
}

// Output holds every validated stage result.
type Output struct {
	Structured   StructuringOutput
	Narrative    NarrativeOutput
	Condensed    CondensationOutput
	Presentation PresentationOutput
}

// Attempt describes one finished stage attempt.
type Attempt struct {
	Stage      string
	Attempt    int
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Observer receives every attempt as it finishes.
type Observer func(Attempt)

// StageError is returned when a stage exhausted its attempts.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Chain executes the stages in order.
type Chain struct {
	settings Settings
	gens     map[string]generator.Generator
	log      *slog.Logger
}

// New resolves every stage's provider from the registry.
func New(reg *generator.Registry, settings Settings, log *slog.Logger) (*Chain, error) {
	gens := make(map[string]generator.Generator, len(Stages))
	for _, stage := range Stages {
		g, err := reg.Get(settings.For(stage).Provider)
		if err != nil {
			return nil, fmt.Errorf("stage %s: %w", stage, err)
		}
		gens[stage] = g
	}
	return &Chain{settings: settings, gens: gens, log: logger.OrDefault(log)}, nil
}

// Run executes all four stages. The first exhausted stage aborts the run
// and the later stages never start.
func (c *Chain) Run(ctx context.Context, in Input, obs Observer) (Output, error) {
	var out Output
	var err error

	prompt, err := structuringPrompt(in.Date, in.Items)
	if err != nil {
		return out, err
	}
	if out.Structured, err = runStage(ctx, c, StageStructuring, prompt, ParseStructuring, obs); err != nil {
		return out, err
	}

	if prompt, err = narrativePrompt(in.Date, out.Structured); err != nil {
		return out, err
	}
	if out.Narrative, err = runStage(ctx, c, StageNarrative, prompt, ParseNarrative, obs); err != nil {
		return out, err
	}

	if prompt, err = condensationPrompt(in.Date, out.Narrative); err != nil {
		return out, err
	}
	if out.Condensed, err = runStage(ctx, c, StageCondensation, prompt, ParseCondensation, obs); err != nil {
		return out, err
	}

	if prompt, err = presentationPrompt(in.Date, out.Structured, out.Narrative, out.Condensed); err != nil {
		return out, err
	}
	if out.Presentation, err = runStage(ctx, c, StagePresentation, prompt, ParsePresentation, obs); err != nil {
		return out, err
	}

	return out, nil
}

// runStage calls the stage's generator until its output passes parse or
// the stage's retry policy is exhausted.
func runStage[T any](ctx context.Context, c *Chain, stage, prompt string, parse func(string) (T, error), obs Observer) (T, error) {
	settings := c.settings.For(stage)
	gen := c.gens[stage]
	req := generator.Request{
		System:      systemFor(stage, settings),
		Prompt:      prompt,
		Model:       settings.Model,
		Temperature: settings.Temperature,
		MaxTokens:   settings.MaxTokens,
	}

	var result T
	attempts := 0
	c.log.Info("🤖 stage started", "stage", stage, "provider", settings.Provider, "max_attempts", settings.Retry.Attempts())

	err := retry.Do(ctx, settings.Retry, func(ctx context.Context, attempt int) error {
		attempts = attempt
		started := time.Now()

		raw, err := gen.Generate(ctx, req)
		if err == nil {
			result, err = parse(raw)
		}

		if obs != nil {
			obs(Attempt{Stage: stage, Attempt: attempt, StartedAt: started, FinishedAt: time.Now(), Err: err})
		}
		if err != nil {
			c.log.Warn("⚠️ stage attempt failed", "stage", stage, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			err = exhausted.Err
		}
		return result, &StageError{Stage: stage, Attempts: attempts, Err: err}
	}

	c.log.Info("✅ stage finished", "stage", stage, "attempts", attempts)
	return result, nil
}
