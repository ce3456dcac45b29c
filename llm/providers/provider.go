package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// EmbeddingConfig defines the configuration for creating an embedding model.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// ModelInfo describes one chat model for the model catalog.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UnsupportedModelError reports a generation request naming a model id that
// is not in the registry. It lists the valid ids.
type UnsupportedModelError struct {
	Requested string
	Available []string
}

func (e *UnsupportedModelError) Error() string {
	return fmt.Sprintf("unsupported model %q, available models: %s",
		e.Requested, strings.Join(e.Available, ", "))
}

// Registry holds the configured chat models keyed by id. An empty id on
// lookup resolves to the default model.
type Registry struct {
	models    map[string]model.BaseChatModel
	infos     []ModelInfo
	defaultID string
}

// NewRegistry builds a registry from a model map. defaultID must be a key
// of models.
func NewRegistry(models map[string]model.BaseChatModel, defaultID string) (*Registry, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("registry needs at least one model")
	}
	if _, ok := models[defaultID]; !ok {
		return nil, fmt.Errorf("default model %q is not registered", defaultID)
	}

	ids := make([]string, 0, len(models))
	for id := range models {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	infos := make([]ModelInfo, len(ids))
	for i, id := range ids {
		infos[i] = describeModel(id)
	}

	return &Registry{models: models, infos: infos, defaultID: defaultID}, nil
}

// Lookup resolves a model id to its chat model. An empty id resolves to the
// default model; an unknown id yields UnsupportedModelError.
func (r *Registry) Lookup(id string) (model.BaseChatModel, string, error) {
	if id == "" {
		id = r.defaultID
	}
	m, ok := r.models[id]
	if !ok {
		available := make([]string, len(r.infos))
		for i, info := range r.infos {
			available[i] = info.ID
		}
		return nil, "", &UnsupportedModelError{Requested: id, Available: available}
	}
	return m, id, nil
}

// DefaultID returns the id of the default model.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// List returns the model catalog ordered by id.
func (r *Registry) List() []ModelInfo {
	out := make([]ModelInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

func describeModel(id string) ModelInfo {
	info := ModelInfo{ID: id, Name: id, Description: "chat model"}
	switch {
	case strings.Contains(id, "pro"):
		info.Description = "higher quality, slower responses"
	case strings.Contains(id, "flash") || strings.Contains(id, "mini"):
		info.Description = "fast responses, good for chat"
	}
	return info
}

// NewGeminiModel creates a Google Gemini chat model.
func NewGeminiModel(ctx context.Context, apiKey, modelName string) (model.BaseChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  modelName,
	})
}

// NewOpenAIModel creates an OpenAI-compatible chat model.
func NewOpenAIModel(ctx context.Context, config *ChatModelConfig) (model.BaseChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:  config.APIKey,
		BaseURL: config.BaseURL,
		Model:   config.Model,
	})
}

// NewEmbedder creates an OpenAI-compatible embedding model.
func NewEmbedder(ctx context.Context, config *EmbeddingConfig) (einoEmbedding.Embedder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required in config")
	}

	return openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
		APIKey:  config.APIKey,
		BaseURL: config.BaseURL,
		Model:   config.Model,
	})
}

// RegistryConfig collects everything needed to build the model registry.
type RegistryConfig struct {
	ModelIDs      []string
	DefaultModel  string
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

// BuildRegistry constructs chat models for every configured id. Ids with a
// "gemini" prefix use the Gemini provider, everything else goes through the
// OpenAI-compatible provider.
func BuildRegistry(ctx context.Context, cfg RegistryConfig) (*Registry, error) {
	models := make(map[string]model.BaseChatModel, len(cfg.ModelIDs))
	for _, id := range cfg.ModelIDs {
		var (
			m   model.BaseChatModel
			err error
		)
		if strings.HasPrefix(id, "gemini") {
			m, err = NewGeminiModel(ctx, cfg.GeminiAPIKey, id)
		} else {
			m, err = NewOpenAIModel(ctx, &ChatModelConfig{
				APIKey:  cfg.OpenAIAPIKey,
				BaseURL: cfg.OpenAIBaseURL,
				Model:   id,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("build model %s: %w", id, err)
		}
		models[id] = m
	}

	return NewRegistry(models, cfg.DefaultModel)
}
