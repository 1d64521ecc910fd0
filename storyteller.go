package main

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const storytellerSystemPrompt = `You are the narrator of a mafia game set in a small, uneasy town. When someone is killed in the night or voted out by the town, you tell a short atmospheric story about it. Keep it to 2-3 sentences. Be noir and tense. Never reveal anyone's role unless the history already states it.`

// Storyteller generates a short story after a death.
// onChunk is called with each text chunk as it streams in.
type Storyteller interface {
	Tell(ctx context.Context, history []string, onChunk func(string)) (string, error)
}

type llmStoryteller struct {
	llm          llms.Model
	systemPrompt string
	callOpts     []llms.CallOption
}

func (s *llmStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman,
			"What has happened in town so far:\n"+strings.Join(history, "\n")+
				"\n\nTell a short story (2-3 sentences) about the latest death."),
	}

	var fullText strings.Builder
	opts := append(s.callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text := string(chunk)
		fullText.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
		return nil
	}))

	_, err := s.llm.GenerateContent(ctx, messages, opts...)
	return strings.TrimSpace(fullText.String()), err
}

// buildCallOpts builds LLM call options from the config.
func buildCallOpts(cfg AppConfig, log *AppLogger) []llms.CallOption {
	var opts []llms.CallOption

	if cfg.StorytellerTemperature != "" {
		if f, err := strconv.ParseFloat(cfg.StorytellerTemperature, 64); err == nil {
			opts = append(opts, llms.WithTemperature(f))
			log.Info("storyteller temperature", zap.Float64("temperature", f))
		} else {
			log.Warn("storyteller: invalid temperature", zap.String("value", cfg.StorytellerTemperature), zap.Error(err))
		}
	}
	return opts
}

// initStoryteller builds the narrator from config. It returns nil when no
// provider is configured or the provider cannot be set up.
func initStoryteller(cfg AppConfig, log *AppLogger) Storyteller {
	model := cfg.StorytellerModel
	callOpts := buildCallOpts(cfg, log)
	provider := zap.String("provider", cfg.StorytellerProvider)

	var (
		llm llms.Model
		err error
	)
	switch cfg.StorytellerProvider {
	case "ollama":
		llm, err = ollama.New(ollama.WithModel(model), ollama.WithServerURL(cfg.StorytellerOllamaURL))
	case "openai":
		llm, err = openai.New(openai.WithModel(model))
	case "claude":
		llm, err = anthropic.New(anthropic.WithModel(model))
	case "gemini":
		llm, err = googleai.New(context.Background(), googleai.WithDefaultModel(model))
	case "groq":
		llm, err = openai.New(
			openai.WithModel(model),
			openai.WithBaseURL("https://api.groq.com/openai/v1"),
			openai.WithToken(cfg.GroqAPIKey),
		)
	case "openai-compatible":
		if cfg.StorytellerURL == "" {
			log.Warn("storyteller: storyteller_url is required for openai-compatible provider")
			return nil
		}
		opts := []openai.Option{
			openai.WithModel(model),
			openai.WithBaseURL(cfg.StorytellerURL),
		}
		if cfg.StorytellerAPIKey != "" {
			opts = append(opts, openai.WithToken(cfg.StorytellerAPIKey))
		}
		llm, err = openai.New(opts...)
	default:
		log.Info("storyteller disabled (set storyteller_provider to enable)")
		return nil
	}
	if err != nil {
		log.Error("storyteller init failed", provider, zap.String("model", model), zap.Error(err))
		return nil
	}
	log.Info("storyteller ready", provider, zap.String("model", model))
	return &llmStoryteller{llm: llm, systemPrompt: storytellerSystemPrompt, callOpts: callOpts}
}

// narrateLocked streams a story about the latest death to the room. Partial
// text goes out every 300ms; the finished story joins the chronicle.
func (r *Room) narrateLocked() {
	if r.narrator == nil {
		return
	}
	history := append([]string(nil), r.chronicle...)
	narrator, emit, code, round, gameID := r.narrator, r.emit, r.Code, r.round, r.gameID

	go func() {
		var mu sync.Mutex
		var buf strings.Builder

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(300 * time.Millisecond)
			defer ticker.Stop()
			sent := 0
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					text := buf.String()
					mu.Unlock()
					if len(text) > sent {
						sent = len(text)
						emit.Broadcast(code, Event{Type: EventStory, Payload: StoryPayload{Round: round, Text: strings.TrimSpace(text)}})
					}
				case <-done:
					return
				}
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		story, err := narrator.Tell(ctx, history, func(chunk string) {
			mu.Lock()
			buf.WriteString(chunk)
			mu.Unlock()
		})
		close(done)

		if err != nil {
			r.log.Warn("storyteller failed", zap.Int("round", round), zap.Error(err))
			return
		}
		if story == "" {
			return
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.gameID != gameID {
			return
		}
		r.chronicle = append(r.chronicle, story)
		r.emit.Broadcast(code, Event{Type: EventStory, Payload: StoryPayload{Round: round, Text: story, Done: true}})
	}()
}
