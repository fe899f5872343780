package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"aifiesta/internal/core"
	"aifiesta/internal/util"
)

// DefaultModels is the catalog advertised when no models file is present.
func DefaultModels() core.ModelsData {
	return core.ModelsData{Data: []core.ModelInfo{
		{ID: "openai/gpt-4o", Name: "GPT-4o", Provider: "OpenAI", Description: "Most capable GPT-4 model with vision capabilities", MaxTokens: 128000},
		{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini", Provider: "OpenAI", Description: "Faster, cheaper GPT-4 model", MaxTokens: 128000},
		{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Provider: "Anthropic", Description: "Most capable Claude model with excellent reasoning", MaxTokens: 200000},
		{ID: "anthropic/claude-3-haiku", Name: "Claude 3 Haiku", Provider: "Anthropic", Description: "Fast and efficient Claude model", MaxTokens: 200000},
		{ID: "google/gemini-pro-1.5", Name: "Gemini Pro 1.5", Provider: "Google", Description: "Google's most capable model with large context", MaxTokens: 2000000},
		{ID: "meta-llama/llama-3.1-405b-instruct", Name: "Llama 3.1 405B", Provider: "Meta", Description: "Meta's largest open-source model", MaxTokens: 131072},
		{ID: "deepseek/deepseek-chat", Name: "DeepSeek Chat", Provider: "DeepSeek", Description: "High-performance reasoning model", MaxTokens: 32768},
		{ID: "mistralai/mistral-7b-instruct", Name: "Mistral 7B", Provider: "Mistral AI", Description: "Efficient and capable 7B parameter model", MaxTokens: 32768},
		{ID: "cohere/command-r-plus", Name: "Command R+", Provider: "Cohere", Description: "Retrieval-optimized model for tool use and RAG", MaxTokens: 128000},
		{ID: "openai/gpt-4.1-mini", Name: "GPT-4.1 Mini", Provider: "OpenAI", Description: "Lightweight GPT-4.1 variant optimized for speed", MaxTokens: 128000},
		{ID: "google/gemini-flash-1.5", Name: "Gemini Flash 1.5", Provider: "Google", Description: "Fast Gemini for near real-time responses", MaxTokens: 1000000},
		{ID: "meta-llama/llama-3.1-70b-instruct", Name: "Llama 3.1 70B", Provider: "Meta", Description: "Balanced open model with strong instruction following", MaxTokens: 131072},
		{ID: "qwen/qwen2.5-72b-instruct", Name: "Qwen2.5 72B", Provider: "Alibaba", Description: "Strong multilingual and coding performance", MaxTokens: 131072},
	}}
}

// LoadModels loads the model catalog from path.
// The file holds either {"data":[...ModelInfo]}, a bare array of ModelInfo, or a bare array of ids.
// A missing file yields DefaultModels.
func LoadModels(path string, logger core.Logger) (core.ModelsData, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from config, not user input
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			models := DefaultModels()
			logger.Info("Models file %s not found, using %d built-in models", path, len(models.Data))
			return models, nil
		}
		return core.ModelsData{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	models, err := parseModels(data)
	if err != nil {
		return core.ModelsData{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	logger.Info("Loaded %d models from %s", len(models.Data), path)
	return models, nil
}

func parseModels(data []byte) (core.ModelsData, error) {
	var wrapped core.ModelsData
	if err := util.UnmarshalJSON(data, &wrapped); err == nil && wrapped.Data != nil {
		return wrapped, nil
	}

	var infos []core.ModelInfo
	if err := util.UnmarshalJSON(data, &infos); err == nil {
		return core.ModelsData{Data: infos}, nil
	}

	var ids []string
	if err := util.UnmarshalJSON(data, &ids); err != nil {
		return core.ModelsData{}, err
	}
	result := core.ModelsData{Data: make([]core.ModelInfo, 0, len(ids))}
	for _, id := range ids {
		result.Data = append(result.Data, core.ModelInfo{ID: id, Name: id, Provider: providerFromID(id)})
	}
	return result, nil
}

// providerFromID returns the vendor prefix of a "vendor/model" identifier.
func providerFromID(id string) string {
	if vendor, _, found := strings.Cut(id, "/"); found {
		return vendor
	}
	return ""
}
