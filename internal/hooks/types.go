package hooks

import (
	"time"
)

// HookEvent names something that happened while handling a command.
type HookEvent string

const (
	// EventProviderFailed fires for every failed provider call.
	EventProviderFailed HookEvent = "provider_failed"
	// EventCredentialCooling fires when a key enters cooldown after a rate limit.
	EventCredentialCooling HookEvent = "credential_cooling"
	// EventCredentialExhausted fires when a key is retired after an authentication failure.
	EventCredentialExhausted HookEvent = "credential_exhausted"
	// EventProvidersExhausted fires when every provider failed for one request.
	EventProvidersExhausted HookEvent = "providers_exhausted"
	// EventValidationFailed fires when a completion is not a valid action.
	EventValidationFailed HookEvent = "validation_failed"
	// EventActionDispatched fires after a handler completed successfully.
	EventActionDispatched HookEvent = "action_dispatched"
	// EventDispatchFailed fires for unhandled kinds and handler failures.
	EventDispatchFailed HookEvent = "dispatch_failed"
)

// AllEvents lists every event the agent publishes.
func AllEvents() []HookEvent {
	return []HookEvent{
		EventProviderFailed, EventCredentialCooling, EventCredentialExhausted,
		EventProvidersExhausted, EventValidationFailed, EventActionDispatched,
		EventDispatchFailed,
	}
}

// HookAction defines the action to be performed when a hook is triggered.
type HookAction string

const (
	ActionLogWarning    HookAction = "log_warning"
	ActionNotifyWebhook HookAction = "notify_webhook"
	ActionRunCommand    HookAction = "run_command"
)

// Hook represents a single automation rule.
type Hook struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Event       HookEvent      `yaml:"event" json:"event"`
	Condition   string         `yaml:"condition" json:"condition"`
	Action      HookAction     `yaml:"action" json:"action"`
	Params      map[string]any `yaml:"params" json:"params"`
	Enabled     bool           `yaml:"enabled" json:"enabled"`

	// FilePath is the source file (not in YAML)
	FilePath string `yaml:"-" json:"-"`
}

// EventContext provides the environment for hook execution.
// Values in it are already redacted by the publisher.
type EventContext struct {
	Event     HookEvent      `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
	Provider  string         `json:"provider,omitempty"`
	// Action is the action kind for validation and dispatch events.
	Action       string `json:"action,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	Error        error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// NewEvent returns a context for event stamped with the current time.
func NewEvent(event HookEvent, data map[string]any) *EventContext {
	if data == nil {
		data = make(map[string]any)
	}
	return &EventContext{Event: event, Timestamp: time.Now(), Data: data}
}

// ActionHandler is a function that executes a hook action.
type ActionHandler func(hook *Hook, ctx *EventContext) error
