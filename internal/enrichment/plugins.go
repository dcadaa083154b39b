// Package enrichment holds the pipeline plugins that fill in an event
// before it is filtered and queued.
package enrichment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"courier/internal/constants"
	"courier/internal/core"
	"courier/pkg/match"
	"courier/pkg/models"
)

const (
	DefaultsPriority         = 10
	ReferenceIDPriority      = 20
	ErrorPriority            = 30
	SubmissionMethodPriority = 100
)

// maxDataDepth bounds how deep user data is kept once encoded.
const maxDataDepth = 10

// Defaults returns the enrichment plugins every client registers.
func Defaults() []core.Plugin {
	return []core.Plugin{
		ConfigurationDefaults{},
		ReferenceID{},
		Error{},
		SubmissionMethod{},
	}
}

// ConfigurationDefaults applies the default tags and data of the client and
// strips user data matching the data exclusions.
type ConfigurationDefaults struct{}

func (ConfigurationDefaults) Name() string  { return "ConfigurationDefaultsPlugin" }
func (ConfigurationDefaults) Priority() int { return DefaultsPriority }

func (ConfigurationDefaults) Run(_ context.Context, pc *core.PluginContext) error {
	cfg := pc.Config
	ev := pc.Event
	exclusions := cfg.DataExclusions()

	ev.AddTags(cfg.DefaultTags()...)

	for key, value := range ev.Data {
		if models.IsReservedKey(key) {
			continue
		}
		if match.Any(exclusions, key) {
			delete(ev.Data, key)
			continue
		}
		ev.Data[key] = match.Prune(value, exclusions, maxDataDepth)
	}

	for key, value := range cfg.DefaultData() {
		if match.Any(exclusions, key) {
			continue
		}
		if models.IsReservedKey(key) {
			ev.SetDataIfAbsent(key, value)
			continue
		}
		ev.SetDataIfAbsent(key, match.Prune(value, exclusions, maxDataDepth))
	}

	if user := cfg.UserIdentity(); user != nil && user.Identity != "" {
		ev.SetDataIfAbsent(models.DataKeyUser, user)
	}
	if version := cfg.Version(); version != "" {
		ev.SetDataIfAbsent(models.DataKeyVersion, version)
	}
	return nil
}

// ReferenceID gives error events a short id the user can quote when
// describing what happened.
type ReferenceID struct{}

func (ReferenceID) Name() string  { return "ReferenceIdPlugin" }
func (ReferenceID) Priority() int { return ReferenceIDPriority }

func (ReferenceID) Run(_ context.Context, pc *core.PluginContext) error {
	if !pc.Config.ReferenceIDsEnabled() || pc.Event.ReferenceID != "" {
		return nil
	}
	if pc.Event.Type != models.EventTypeError {
		return nil
	}
	pc.Event.ReferenceID = NewReferenceID()
	return nil
}

func NewReferenceID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:constants.ReferenceIDLen]
}

// Error turns the captured Go error into the @error value.
type Error struct{}

func (Error) Name() string  { return "ErrorPlugin" }
func (Error) Priority() int { return ErrorPriority }

func (Error) Run(ctx context.Context, pc *core.PluginContext) error {
	if !pc.EventContext.HasError() {
		return nil
	}
	if _, exists := pc.Event.GetData(models.DataKeyError); exists {
		return nil
	}

	info, err := pc.Config.ErrorParser().Parse(ctx, pc, pc.EventContext.Error)
	if err != nil {
		return fmt.Errorf("parse error: %w", err)
	}
	if info == nil {
		pc.Log().WarnwCtx(ctx, "No error information could be parsed, discarding event")
		pc.Cancelled = true
		return nil
	}

	pc.Event.Type = models.EventTypeError
	pc.Event.SetData(models.DataKeyError, info)
	return nil
}

// SubmissionMethod records how the event was captured.
type SubmissionMethod struct{}

func (SubmissionMethod) Name() string  { return "SubmissionMethodPlugin" }
func (SubmissionMethod) Priority() int { return SubmissionMethodPriority }

func (SubmissionMethod) Run(_ context.Context, pc *core.PluginContext) error {
	method := pc.EventContext.SubmissionMethod
	if method == "" {
		return nil
	}
	pc.Event.SetData(models.DataKeySubmissionMethod, method)
	return nil
}
