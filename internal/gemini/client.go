package gemini

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

	"github.com/rs/zerolog"

	"invsync/internal/config"
)

// Client talks to the generative-language document API. One call sends the
// whole PDF plus an instruction and returns the generated text.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	log        zerolog.Logger
	sleep      func(time.Duration)
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.GeminiTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.GeminiRateLimitRPS),
		log:        log,
		sleep:      time.Sleep,
	}
}

// GenerateFromPDF sends the PDF with the given instruction and returns the
// generated text. Rate-limit (429) and unavailable (503) responses are
// retried up to the configured attempt count, with a longer delay for 429;
// any other non-success status fails immediately.
func (c *Client) GenerateFromPDF(ctx context.Context, pdf []byte, prompt string) (string, error) {
	if strings.TrimSpace(c.cfg.GeminiAPIKey) == "" {
		return "", errors.New("missing GEMINI_API_KEY")
	}

	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: prompt},
				{InlineData: &inlineData{
					MimeType: "application/pdf",
					Data:     base64.StdEncoding.EncodeToString(pdf),
				}},
			},
		}},
		GenerationConfig: generationConfig{
			Temperature:     c.cfg.GeminiTemperature,
			MaxOutputTokens: c.cfg.GeminiMaxTokens,
			TopP:            c.cfg.GeminiTopP,
			TopK:            c.cfg.GeminiTopK,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.GeminiBaseURL, "/"), c.cfg.GeminiModel, c.cfg.GeminiAPIKey)

	maxAttempts := c.cfg.GeminiMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				c.sleep(c.retryDelay(0))
				continue
			}
			break
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			lastErr = fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncateBody(respBody))
			c.log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("gemini retryable error")
			if attempt < maxAttempts {
				c.sleep(c.retryDelay(resp.StatusCode))
				continue
			}
			break
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("gemini api error: status=%d body=%s", resp.StatusCode, truncateBody(respBody))
		}

		var parsed generateResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return "", fmt.Errorf("gemini response decode: %w", err)
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", errors.New("gemini returned no content")
		}
		return parsed.Candidates[0].Content.Parts[0].Text, nil
	}

	if lastErr == nil {
		lastErr = errors.New("gemini request failed")
	}
	return "", fmt.Errorf("gemini exhausted %d attempts: %w", maxAttempts, lastErr)
}

// retryDelay scales the base delay: rate limiting waits twice as long as
// generic unavailability.
func (c *Client) retryDelay(status int) time.Duration {
	base := time.Duration(c.cfg.GeminiRetryDelayMs) * time.Millisecond
	if status == http.StatusTooManyRequests {
		return base * 2
	}
	return base
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
