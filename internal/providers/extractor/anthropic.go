package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atolldev/billscan/internal/config"
	"go.uber.org/zap"
)

const anthropicVersion = "2023-06-01"

var ErrNotConfigured = errors.New("extractor: api key not configured")

// AnthropicClient calls the Anthropic messages API with bill page images.
type AnthropicClient struct {
	httpClient *http.Client
	log        *zap.Logger

	apiKey  string
	model   string
	baseURL string
}

func NewAnthropicClient(cfg config.Config, logger *zap.Logger) Extractor {
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        logger.Named("extractor.anthropic"),
		apiKey:     cfg.AnthropicAPIKey,
		model:      cfg.AnthropicModel,
		baseURL:    strings.TrimRight(cfg.AnthropicBaseURL, "/"),
	}
}

func (c *AnthropicClient) QuickExtract(ctx context.Context, image Image) (QuickResult, error) {
	content := []map[string]any{
		imageBlock(image),
		{"type": "text", "text": quickScanPrompt},
	}

	var result QuickResult
	if err := c.complete(ctx, content, 1024, &result); err != nil {
		return QuickResult{}, err
	}
	return result, nil
}

func (c *AnthropicClient) FullExtract(ctx context.Context, images []Image) (Result, error) {
	if len(images) == 0 {
		return Result{}, errors.New("extractor: no images to extract from")
	}

	prompt := billExtractionPrompt
	if len(images) > 1 {
		prompt += multiPageNote
	}

	content := make([]map[string]any, 0, len(images)+1)
	for _, img := range images {
		content = append(content, imageBlock(img))
	}
	content = append(content, map[string]any{"type": "text", "text": prompt})

	var result Result
	if err := c.complete(ctx, content, 4096, &result); err != nil {
		return Result{}, err
	}
	if err := Validate(result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (c *AnthropicClient) complete(ctx context.Context, content []map[string]any, maxTokens int, out any) error {
	if c.apiKey == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	body := map[string]any{
		"model":       c.model,
		"max_tokens":  maxTokens,
		"temperature": 0.1,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("extractor: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("extractor: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("extraction request rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return fmt.Errorf("extractor: api returned status %d", resp.StatusCode)
	}

	var msg struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("extractor: decode response: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return errors.New("extractor: no text content in model response")
	}

	if err := json.Unmarshal([]byte(stripMarkdownFences(text)), out); err != nil {
		return fmt.Errorf("extractor: parse model JSON: %w", err)
	}

	c.log.Info("extraction call complete",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func imageBlock(img Image) map[string]any {
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return map[string]any{
		"type": "image",
		"source": map[string]any{
			"type":       "base64",
			"media_type": mediaType,
			"data":       base64.StdEncoding.EncodeToString(img.Data),
		},
	}
}

// stripMarkdownFences tolerates models wrapping JSON in ``` blocks.
func stripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
