// Package parser calls the external intent parser and re-validates its
// loosely typed output. The parser is best-effort: every failure mode fails
// open to an empty result, which the engine treats as "insufficient
// information", never as an HTTP error.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"jobtrack-commands/internal/common/logger"
	"jobtrack-commands/internal/common/metrics"
)

var (
	ErrIntentParsingFailed = errors.New("INTENT_PARSING_FAILED")
	ErrIntentAPITimeout    = errors.New("INTENT_API_TIMEOUT")
)

const systemPrompt = `You transform a short command transcript into strict JSON: ` +
	`{"intent":"CREATE|UPDATE|MOVE_STAGE|ARCHIVE|RESTORE|COMMENT","args":{}} ` +
	`Stages: WISHLIST, APPLIED, INTERVIEW, OFFER, ARCHIVED.`

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.WithFields(map[string]interface{}{"component": "intent-parser"}),
	}
}

// Parse turns a transcript into a best-effort {intent, args} pair. It never
// returns an error: timeouts, non-200s, and decode failures all collapse to
// an empty ParsedCommand.
func (c *Client) Parse(ctx context.Context, transcript string) ParsedCommand {
	if c.config.APIKey == "" {
		return ParsedCommand{}
	}

	parsed, err := c.parse(ctx, transcript)
	if err != nil {
		reason := "error"
		if errors.Is(err, ErrIntentAPITimeout) {
			reason = "timeout"
		}
		metrics.ParserFailures.WithLabelValues(reason).Inc()
		c.logger.Warn("intent parse failed open", map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		})
		return ParsedCommand{}
	}
	return parsed
}

func (c *Client) parse(ctx context.Context, transcript string) (ParsedCommand, error) {
	requestBody := map[string]interface{}{
		"model": c.config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": transcript},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}
	body, _ := json.Marshal(requestBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ParsedCommand{}, ErrIntentAPITimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return ParsedCommand{}, fmt.Errorf("%w: %v", ErrIntentParsingFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			return ParsedCommand{}, ErrIntentAPITimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		return ParsedCommand{}, fmt.Errorf("%w: %v", ErrIntentParsingFailed, lastErr)
	}
	if resp == nil {
		return ParsedCommand{}, fmt.Errorf("%w: no successful response after retries", ErrIntentParsingFailed)
	}
	defer resp.Body.Close()

	var apiResponse struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return ParsedCommand{}, fmt.Errorf("%w: decode error: %v", ErrIntentParsingFailed, err)
	}
	if len(apiResponse.Choices) == 0 {
		return ParsedCommand{}, fmt.Errorf("%w: empty choices", ErrIntentParsingFailed)
	}

	var parsed ParsedCommand
	if err := json.Unmarshal([]byte(apiResponse.Choices[0].Message.Content), &parsed); err != nil {
		return ParsedCommand{}, fmt.Errorf("%w: content parse error: %v", ErrIntentParsingFailed, err)
	}

	c.logger.Debug("intent parsed", map[string]interface{}{
		"intent":   parsed.Intent,
		"argCount": len(parsed.Args),
	})

	return parsed, nil
}
