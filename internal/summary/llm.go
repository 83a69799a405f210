package summary

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dshills/prsum/internal/cache"
	"github.com/dshills/prsum/internal/changes"
	"github.com/dshills/prsum/internal/logging"
	"github.com/dshills/prsum/internal/providers"
	"github.com/dshills/prsum/internal/redact"
)

// ResponseCache is satisfied by *cache.Cache.
type ResponseCache interface {
	Get(key string) (string, bool)
	Put(key, response string) error
}

// LLMOptions tunes the generation requests.
type LLMOptions struct {
	Model              string
	Temperature        float64
	OverallTemperature float64
	MaxTokens          int
	OverallMaxTokens   int
	MaxDiffLines       int
	Redact             redact.Policy
	// Cache is optional.
	Cache  ResponseCache
	Logger *slog.Logger
}

// LLMSummarizer implements FileSummarizer and OverallSummarizer on top of a
// providers.Generator. Provider errors are wrapped so the providers
// classifiers still apply.
type LLMSummarizer struct {
	gen  providers.Generator
	opts LLMOptions
	log  *slog.Logger
}

// NewLLMSummarizer returns a summarizer using gen.
func NewLLMSummarizer(gen providers.Generator, opts LLMOptions) *LLMSummarizer {
	return &LLMSummarizer{
		gen:  gen,
		opts: opts,
		log:  logging.Component(opts.Logger, "llm"),
	}
}

// SummarizeFile asks for a one-paragraph summary of one file's changes.
// The diff and change contents are redacted before the prompt is built.
func (s *LLMSummarizer) SummarizeFile(ctx context.Context, in FileInput, timeout time.Duration) (string, error) {
	diff, n := s.opts.Redact.Apply(in.Path, in.Diff)
	list := in.Changes
	if n > 0 {
		s.log.Debug("redacted diff", logging.FieldFile, in.Path, "replacements", n)
		list = s.redactChanges(in.Path, list)
	}

	prompt := BuildFilePrompt(in.Path, diff, list, s.opts.MaxDiffLines)
	return s.generate(ctx, prompt, s.opts.Temperature, s.opts.MaxTokens, timeout)
}

// SummarizeOverall asks for a short summary of the whole change set.
func (s *LLMSummarizer) SummarizeOverall(ctx context.Context, in OverallInput, timeout time.Duration) (string, error) {
	if s.opts.Redact.Secrets {
		in.Files = slices.Clone(in.Files)
		for i := range in.Files {
			in.Files[i].Summary = redact.Secrets(in.Files[i].Summary)
		}
		in.Commits = slices.Clone(in.Commits)
		for i := range in.Commits {
			in.Commits[i] = redact.Secrets(in.Commits[i])
		}
	}
	prompt := BuildOverallPrompt(in)
	return s.generate(ctx, prompt, s.opts.OverallTemperature, s.opts.OverallMaxTokens, timeout)
}

func (s *LLMSummarizer) generate(ctx context.Context, prompt string, temperature float64, maxTokens int, timeout time.Duration) (string, error) {
	system := SystemPrompt()
	key := cache.BuildKey(s.gen.Name(), s.opts.Model, temperature, maxTokens, system, prompt)
	if s.opts.Cache != nil {
		if text, ok := s.opts.Cache.Get(key); ok {
			s.log.Debug("cache hit")
			return text, nil
		}
	}

	resp, err := s.gen.Generate(ctx, providers.Request{
		SystemPrompt: system,
		UserPrompt:   prompt,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
		Timeout:      timeout,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.gen.Name(), err)
	}
	text := strings.TrimSpace(resp.Content)
	s.log.Debug("generated", "attempts", resp.Attempts, "tokens", resp.TokensUsed)

	if text != "" && s.opts.Cache != nil {
		if err := s.opts.Cache.Put(key, text); err != nil {
			s.log.Warn("cache write failed", "error", err)
		}
	}
	return text, nil
}

// redactChanges returns copies of list with secrets scrubbed from the
// line contents and context.
func (s *LLMSummarizer) redactChanges(path string, list []changes.AtomicChange) []changes.AtomicChange {
	out := make([]changes.AtomicChange, len(list))
	for i, c := range list {
		out[i] = c
		if c.OldContent != nil {
			v, _ := s.opts.Redact.Apply(path, *c.OldContent)
			out[i].OldContent = &v
		}
		if c.NewContent != nil {
			v, _ := s.opts.Redact.Apply(path, *c.NewContent)
			out[i].NewContent = &v
		}
		if len(c.Context) > 0 {
			out[i].Context = make([]string, len(c.Context))
			for j, line := range c.Context {
				out[i].Context[j], _ = s.opts.Redact.Apply(path, line)
			}
		}
	}
	return out
}
