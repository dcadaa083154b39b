package core

import (
	"context"
	"time"

	"courier/internal/logger"
	"courier/pkg/models"
)

// Plugin is one step of the event pipeline. Lower priorities run first.
type Plugin interface {
	Name() string
	Priority() int
	Run(ctx context.Context, pc *PluginContext) error
}

// Starter is implemented by plugins that own background work.
type Starter interface {
	Startup(ctx context.Context, lc *LifecycleContext) error
}

type Suspender interface {
	Suspend(ctx context.Context, lc *LifecycleContext) error
}

// PluginFunc adapts a function to the Run step of a plugin.
type PluginFunc func(ctx context.Context, pc *PluginContext) error

type funcPlugin struct {
	name     string
	priority int
	fn       PluginFunc
}

func (p *funcPlugin) Name() string  { return p.name }
func (p *funcPlugin) Priority() int { return p.priority }

func (p *funcPlugin) Run(ctx context.Context, pc *PluginContext) error {
	return p.fn(ctx, pc)
}

// NewPlugin builds a plugin from fn.
func NewPlugin(name string, priority int, fn PluginFunc) Plugin {
	return &funcPlugin{name: name, priority: priority, fn: fn}
}

// EventContext is scratch state for one capture. It is never persisted.
type EventContext struct {
	Error            error
	Unhandled        bool
	Async            bool
	SubmissionMethod string
	Values           map[string]interface{}
}

func NewEventContext() *EventContext {
	return &EventContext{Values: make(map[string]interface{})}
}

func (c *EventContext) SetError(err error) *EventContext {
	c.Error = err
	return c
}

func (c *EventContext) HasError() bool {
	return c != nil && c.Error != nil
}

func (c *EventContext) MarkAsUnhandledError() *EventContext {
	c.Unhandled = true
	return c
}

func (c *EventContext) SetSubmissionMethod(method string) *EventContext {
	c.SubmissionMethod = method
	return c
}

func (c *EventContext) Set(key string, value interface{}) *EventContext {
	if c.Values == nil {
		c.Values = make(map[string]interface{})
	}
	c.Values[key] = value
	return c
}

func (c *EventContext) Get(key string) (interface{}, bool) {
	if c == nil || c.Values == nil {
		return nil, false
	}
	v, ok := c.Values[key]
	return v, ok
}

// PluginContext is passed by pointer through the pipeline. Setting
// Cancelled stops the remaining plugins.
type PluginContext struct {
	Event        *models.Event
	EventContext *EventContext
	Config       *Configuration
	Cancelled    bool
}

func NewPluginContext(cfg *Configuration, event *models.Event, eventCtx *EventContext) *PluginContext {
	if eventCtx == nil {
		eventCtx = NewEventContext()
	}
	return &PluginContext{Event: event, EventContext: eventCtx, Config: cfg}
}

func (c *PluginContext) Log() logger.Logger {
	return c.Config.Log()
}

// LifecycleContext is handed to Startup and Suspend hooks.
type LifecycleContext struct {
	Config *Configuration
}

func (c *LifecycleContext) Log() logger.Logger {
	return c.Config.Log()
}

// Queue is the part of the event queue the pipeline stages depend on.
type Queue interface {
	Enqueue(ctx context.Context, event *models.Event)
	Process(ctx context.Context)
	SuspendProcessing(ctx context.Context, duration time.Duration, discardFutureItems, clearQueue bool)
}
