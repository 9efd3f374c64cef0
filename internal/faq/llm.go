package faq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/d9705996/clientportal/internal/config"
	"github.com/d9705996/clientportal/internal/lang"
)

// Disclaimers are appended to every model-generated answer.
var Disclaimers = map[lang.Lang]string{
	lang.French:  "Ces informations sont générales et ne remplacent pas un avis fiscal personnalisé.",
	lang.English: "This information is general and does not replace personalized tax advice.",
	lang.Spanish: "Esta información es general y no sustituye un asesoramiento fiscal personalizado.",
}

var systemPrompts = map[lang.Lang]string{
	lang.French: "Tu es l'assistant d'un cabinet de préparation de déclarations de revenus au Québec. " +
		"Réponds en français, brièvement, avec des informations générales seulement. " +
		"Ne donne jamais de conseil personnalisé et ne demande aucun renseignement personnel.",
	lang.English: "You are the assistant of a tax preparation firm in Quebec. " +
		"Answer in English, briefly, with general information only. " +
		"Never give personalized advice and never ask for personal information.",
	lang.Spanish: "Eres el asistente de un despacho de preparación de declaraciones de impuestos en Quebec. " +
		"Responde en español, brevemente, solo con información general. " +
		"Nunca des consejos personalizados ni pidas datos personales.",
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// LLMResponder answers through an OpenAI-compatible chat completions API and
// falls back to canned answers on any failure.
type LLMResponder struct {
	apiKey   string
	baseURL  string
	model    string
	client   *http.Client
	fallback Responder
	log      *slog.Logger
}

// NewLLMResponder creates a responder calling {baseURL}/chat/completions.
func NewLLMResponder(apiKey, baseURL, model string, fallback Responder, log *slog.Logger) *LLMResponder {
	return &LLMResponder{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		client:   &http.Client{Timeout: 20 * time.Second},
		fallback: fallback,
		log:      log,
	}
}

func (r *LLMResponder) Respond(ctx context.Context, question string, l lang.Lang) (Answer, error) {
	l = lang.OrDefault(string(l))
	content, err := r.complete(ctx, question, l)
	if err != nil {
		r.log.Warn("faq model call failed, using canned answer", "err", err)
		return r.fallback.Respond(ctx, question, l)
	}
	intent := Classify(question)
	base := canned(intent, l)
	return Answer{
		Intent:  intent,
		Content: strings.TrimSpace(content) + "\n\n" + Disclaimers[l],
		Tags:    base.Tags,
		Actions: base.Actions,
		Source:  "llm",
	}, nil
}

func (r *LLMResponder) complete(ctx context.Context, question string, l lang.Lang) (string, error) {
	if r.apiKey == "" {
		return "", fmt.Errorf("AI_API_KEY not set")
	}
	body, err := json.Marshal(chatRequest{
		Model: r.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompts[l]},
			{Role: "user", Content: question},
		},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr chatError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("chat API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("chat API error (%d)", resp.StatusCode)
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty completion")
	}
	return out.Choices[0].Message.Content, nil
}

// New picks the responder for the configured provider. Anything other than
// "openai" (with a key) uses canned answers only.
func New(cfg config.AIConfig, log *slog.Logger) Responder {
	rules := NewRuleResponder()
	if cfg.Provider != "openai" || cfg.APIKey == "" {
		return rules
	}
	return NewLLMResponder(cfg.APIKey, cfg.APIBase, cfg.Model, rules, log)
}
