// Package llm wraps an OpenAI-compatible chat completion endpoint for the dashboard assistant.
// The assistant can look up prices, headlines and a technical snapshot through function calls.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/pkg/config"
)

const systemPrompt = `You are Matrix Alpha, a senior financial analyst assistant for Indian equity markets.
Use the tools when the user asks about a specific stock's price, news or technicals; you may call
several. Answer concisely from the tool results without naming the tools. When you quote prices,
say they may be delayed. Never give personalised investment advice.`

const (
	// maxHistory bounds how many prior turns are forwarded to the model.
	maxHistory = 20
	// maxToolRounds bounds model -> tools -> model round trips per message.
	maxToolRounds = 3
)

var ErrEmptyMessage = errors.New("llm: empty message")

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Reply is the assistant's answer and the tools it ran to produce it, in call order.
type Reply struct {
	Text      string
	ToolsUsed []string
}

// Completer is the subset of the go-openai client used here.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api    Completer
	model  string
	tools  *toolbox
	logger *zap.Logger
}

// New builds a client from config. BaseURL allows any OpenAI-compatible server.
func New(cfg config.LLMConfig, tools Tools, logger *zap.Logger) *Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return NewWithCompleter(openai.NewClientWithConfig(c), cfg.Model, tools, logger)
}

func NewWithCompleter(api Completer, model string, tools Tools, logger *zap.Logger) *Client {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, model: model, tools: newToolbox(tools), logger: logger}
}

// Chat sends the history plus the new message, runs any tools the model asks for and returns
// the final answer.
func (c *Client) Chat(ctx context.Context, history []Turn, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: buildMessages(history, message),
		Tools:    c.tools.definitions(),
	}

	var (
		used    []string
		outputs []string
	)
	for round := 0; ; round++ {
		if round == maxToolRounds {
			req.Tools = nil // force an answer
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			if len(outputs) > 0 {
				c.logger.Warn("Follow-up completion failed, returning raw tool output", zap.Error(err))
				return Reply{Text: gathered(outputs), ToolsUsed: used}, nil
			}
			return Reply{}, fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return Reply{}, errors.New("chat completion: no choices returned")
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 || req.Tools == nil {
			text := strings.TrimSpace(msg.Content)
			if text == "" && len(outputs) > 0 {
				text = gathered(outputs)
			}
			return Reply{Text: text, ToolsUsed: used}, nil
		}

		req.Messages = append(req.Messages, msg)
		for _, call := range msg.ToolCalls {
			out, ok := c.tools.run(ctx, call.Function.Name, call.Function.Arguments)
			if ok {
				used = append(used, call.Function.Name)
				c.logger.Info("Assistant tool executed",
					zap.String("tool", call.Function.Name), zap.String("args", call.Function.Arguments))
			} else {
				c.logger.Warn("Assistant requested unknown tool", zap.String("tool", call.Function.Name))
			}
			outputs = append(outputs, out)
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    out,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}
}

func buildMessages(history []Turn, message string) []openai.ChatCompletionMessage {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	return append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
}

func gathered(outputs []string) string {
	return "I've gathered the following information for you:\n\n" + strings.Join(outputs, "\n")
}
