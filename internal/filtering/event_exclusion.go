// Package filtering holds the plugins that drop events based on server
// settings and configured expressions.
package filtering

import (
	"context"

	"courier/internal/constants"
	"courier/internal/core"
	"courier/pkg/match"
	"courier/pkg/models"
)

const (
	EventExclusionPriority      = 45
	ExpressionExclusionPriority = 46

	settingLogPrefix   = constants.SettingPrefix + "log:"
	settingErrorPrefix = constants.SettingPrefix + "error:"
)

// EventExclusion cancels events switched off by server settings:
//
//	@@log:<source>     minimum log level for log events from source
//	@@error:<type>     false drops errors with that type anywhere in the chain
//	@@<type>:<source>  false drops other events of that type from source
//
// Keys may contain '*' wildcards.
type EventExclusion struct{}

func (EventExclusion) Name() string  { return "EventExclusionPlugin" }
func (EventExclusion) Priority() int { return EventExclusionPriority }

func (EventExclusion) Run(ctx context.Context, pc *core.PluginContext) error {
	settings := pc.Config.Settings()
	if len(settings) == 0 {
		return nil
	}

	ev := pc.Event
	log := pc.Log()

	switch ev.Type {
	case models.EventTypeLog:
		level := parseLevel(ev.Level())
		minLevel := minLogLevel(settings, ev.Source)
		if level != levelUnknown && (level == levelOff || level < minLevel) {
			log.InfowCtx(ctx, "Cancelling log event due to minimum log level",
				"source", ev.Source,
				"level", ev.Level(),
			)
			pc.Cancelled = true
		} else if level == levelUnknown && minLevel == levelOff {
			log.InfowCtx(ctx, "Cancelling log event from disabled source", "source", ev.Source)
			pc.Cancelled = true
		}
	case models.EventTypeError:
		info, ok := ev.ErrorInfo()
		if !ok {
			return nil
		}
		for e := info; e != nil; e = e.Inner {
			if e.Type == "" {
				continue
			}
			if value, found := match.Lookup(settings, settingErrorPrefix+e.Type); found && !parseBool(value, true) {
				log.InfowCtx(ctx, "Cancelling error from excluded exception type", "type", e.Type)
				pc.Cancelled = true
				return nil
			}
		}
	default:
		key := constants.SettingPrefix + ev.Type + ":" + ev.Source
		if value, found := match.Lookup(settings, key); found && !parseBool(value, true) {
			log.InfowCtx(ctx, "Cancelling event from excluded type and source",
				"type", ev.Type,
				"source", ev.Source,
			)
			pc.Cancelled = true
		}
	}
	return nil
}

func minLogLevel(settings map[string]string, source string) int {
	value, found := match.Lookup(settings, settingLogPrefix+source)
	if !found {
		return levelTrace
	}
	level := parseLevel(value)
	if level == levelUnknown {
		return levelTrace
	}
	return level
}
