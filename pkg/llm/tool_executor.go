package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxtro/voxtro-engine/pkg/models"
)

// ActionExecutor runs model-requested actions against their configured HTTP
// targets. Failures of any kind become descriptive text fed back to the
// model; a broken action must never abort the conversation.
type ActionExecutor struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewActionExecutor creates an ActionExecutor. timeout bounds each action
// call and defaults to 30s.
func NewActionExecutor(timeout time.Duration, logger *zap.Logger) *ActionExecutor {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &ActionExecutor{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("actions"),
	}
}

// WithActions binds the executor to one chatbot's action list, producing the
// ToolExecutor used for a single conversation turn.
func (e *ActionExecutor) WithActions(actions []*models.Action) ToolExecutor {
	bound := &boundExecutor{executor: e, actions: make(map[string]*models.Action, len(actions))}
	for _, a := range actions {
		bound.actions[a.Name] = a
	}
	return bound
}

type boundExecutor struct {
	executor *ActionExecutor
	actions  map[string]*models.Action
}

var _ ToolExecutor = (*boundExecutor)(nil)

func (b *boundExecutor) ExecuteTool(ctx context.Context, name string, arguments string) string {
	action, ok := b.actions[name]
	if !ok {
		return fmt.Sprintf("Action %q not found", name)
	}
	return b.executor.Execute(ctx, action, arguments)
}

// Execute runs one action with the model-supplied JSON arguments and returns
// the textual result to feed back to the model.
func (e *ActionExecutor) Execute(ctx context.Context, action *models.Action, arguments string) string {
	args := map[string]interface{}{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return fmt.Sprintf("Action %q received invalid arguments: %v", action.Name, err)
		}
	}

	req, err := e.buildRequest(ctx, action, args, arguments)
	if err != nil {
		return fmt.Sprintf("Action %q could not be executed: %v", action.Name, err)
	}
	if req == nil {
		return fmt.Sprintf("Action %q has unsupported kind %q or method %q", action.Name, action.Kind, action.Method)
	}

	e.logger.Debug("executing action",
		zap.String("action", action.Name),
		zap.String("kind", action.Kind),
		zap.String("method", req.Method))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn("action request failed",
			zap.String("action", action.Name),
			zap.Error(err))
		return fmt.Sprintf("Action %q failed: %v", action.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Sprintf("Action %q failed reading response: %v", action.Name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Sprintf("Action %q returned status %d: %s", action.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// JSON bodies are re-serialized so the model always sees canonical
	// JSON; anything else goes back as raw text.
	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if encoded, err := json.Marshal(parsed); err == nil {
			return string(encoded)
		}
	}
	return string(body)
}

func (e *ActionExecutor) buildRequest(ctx context.Context, action *models.Action, args map[string]interface{}, rawArguments string) (*http.Request, error) {
	switch action.Kind {
	case models.ActionKindWebhook:
		if rawArguments == "" {
			rawArguments = "{}"
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, action.URL, bytes.NewBufferString(rawArguments))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		e.applyHeaders(req, action, args)
		return req, nil

	case models.ActionKindAPI:
		method := strings.ToUpper(action.Method)
		url := resolvePlaceholders(action.URL, args)

		switch method {
		case http.MethodGet, http.MethodDelete:
			req, err := http.NewRequestWithContext(ctx, method, url, nil)
			if err != nil {
				return nil, err
			}
			e.applyHeaders(req, action, args)
			return req, nil

		case http.MethodPost, http.MethodPut:
			body := action.BodyTemplate
			if body != "" {
				body = resolvePlaceholders(body, args)
			} else {
				encoded, err := json.Marshal(args)
				if err != nil {
					return nil, err
				}
				body = string(encoded)
			}
			req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBufferString(body))
			if err != nil {
				return nil, err
			}
			req.Header.Set("Content-Type", "application/json")
			e.applyHeaders(req, action, args)
			return req, nil

		default:
			return nil, nil
		}

	default:
		return nil, nil
	}
}

func (e *ActionExecutor) applyHeaders(req *http.Request, action *models.Action, args map[string]interface{}) {
	for key, value := range action.Headers {
		req.Header.Set(key, resolvePlaceholders(coerceString(value), args))
	}
}

// resolvePlaceholders substitutes {{param}} placeholders from the
// model-supplied arguments. Unmatched placeholders are left untouched.
func resolvePlaceholders(template string, args map[string]interface{}) string {
	for key, value := range args {
		template = strings.ReplaceAll(template, "{{"+key+"}}", coerceString(value))
	}
	return template
}

func coerceString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
