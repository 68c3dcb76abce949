package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion = "2023-06-01"
)

// AnthropicStreamer speaks the Anthropic Messages API with SSE streaming.
type AnthropicStreamer struct {
	apiKey    string
	model     string
	maxTokens int
	baseURL   string
	client    *http.Client
}

func NewAnthropicStreamer(apiKey, model string, maxTokens int) *AnthropicStreamer {
	return &AnthropicStreamer{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		baseURL:   anthropicBaseURL,
		client:    &http.Client{Timeout: 10 * time.Minute},
	}
}

type anthropicRequest struct {
	Model     string     `json:"model"`
	MaxTokens int        `json:"max_tokens"`
	System    string     `json:"system,omitempty"`
	Messages  []Message  `json:"messages"`
	Tools     []ToolSpec `json:"tools,omitempty"`
	Stream    bool       `json:"stream"`
}

// streamEvent is the union of SSE payload shapes we care about.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock *struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Name  string `json:"name"`
		Input any    `json:"input"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *AnthropicStreamer) StreamTurn(ctx context.Context, req TurnRequest, onDelta func(string)) (*Turn, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     req.Tools,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", s.apiKey)
	httpReq.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("completion service returned %d: %s", resp.StatusCode, msg)
	}

	return parseStream(resp.Body, onDelta)
}

// parseStream consumes SSE events until message_stop, assembling the final
// structured turn. Text deltas are forwarded one at a time, unbuffered.
func parseStream(r io.Reader, onDelta func(string)) (*Turn, error) {
	turn := &Turn{}
	// Partial tool inputs arrive as JSON fragments keyed by block index.
	partials := map[int]*strings.Builder{}
	blockIndex := map[int]int{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}

		switch ev.Type {
		case "content_block_start":
			if ev.ContentBlock == nil {
				continue
			}
			switch ev.ContentBlock.Type {
			case BlockText:
				blockIndex[ev.Index] = len(turn.Blocks)
				turn.Blocks = append(turn.Blocks, ContentBlock{Type: BlockText})
			case BlockToolUse:
				blockIndex[ev.Index] = len(turn.Blocks)
				turn.Blocks = append(turn.Blocks, ContentBlock{
					Type: BlockToolUse,
					ID:   ev.ContentBlock.ID,
					Name: ev.ContentBlock.Name,
				})
				partials[ev.Index] = &strings.Builder{}
			}

		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if i, ok := blockIndex[ev.Index]; ok {
					turn.Blocks[i].Text += ev.Delta.Text
				}
				if onDelta != nil && ev.Delta.Text != "" {
					onDelta(ev.Delta.Text)
				}
			case "input_json_delta":
				if b, ok := partials[ev.Index]; ok {
					b.WriteString(ev.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if b, ok := partials[ev.Index]; ok {
				raw := strings.TrimSpace(b.String())
				input := map[string]any{}
				if raw != "" {
					if err := json.Unmarshal([]byte(raw), &input); err != nil {
						return nil, fmt.Errorf("decode tool input: %w", err)
					}
				}
				if i, ok := blockIndex[ev.Index]; ok {
					turn.Blocks[i].Input = input
				}
				delete(partials, ev.Index)
			}

		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				turn.StopReason = ev.Delta.StopReason
			}

		case "message_stop":
			return turn, nil

		case "error":
			if ev.Error != nil {
				return nil, fmt.Errorf("completion stream error: %s", ev.Error.Message)
			}
			return nil, fmt.Errorf("completion stream error")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return turn, nil
}
