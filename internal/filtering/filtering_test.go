package filtering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/internal/config"
	"courier/internal/core"
	"courier/pkg/models"
)

func newConfig(settings map[string]string) *core.Configuration {
	client := config.Default().Client
	client.APIKey = "LhhP1C9gijpSKCslHHCvwdSIz298twx271nTest"
	cfg := core.NewConfiguration(client, 0)
	cfg.ApplyServerSettings(&models.ServerSettings{Version: 1, Settings: settings})
	return cfg
}

func logEvent(source, level string) *models.Event {
	ev := models.NewEvent(models.EventTypeLog)
	ev.Source = source
	if level != "" {
		ev.SetData(models.DataKeyLevel, level)
	}
	return ev
}

func excluded(t *testing.T, p core.Plugin, cfg *core.Configuration, ev *models.Event) bool {
	t.Helper()
	pc := core.NewPluginContext(cfg, ev, nil)
	require.NoError(t, p.Run(context.Background(), pc))
	return pc.Cancelled
}

func TestEventExclusion_LogLevels(t *testing.T) {
	cfg := newConfig(map[string]string{
		"@@log:*":            "info",
		"@@log:billing.*":    "error",
		"@@log:billing.jobs": "debug",
		"@@log:noisy":        "false",
	})

	tests := []struct {
		name   string
		source string
		level  string
		want   bool
	}{
		{name: "below global minimum", source: "web", level: "debug", want: true},
		{name: "at global minimum", source: "web", level: "Info", want: false},
		{name: "wildcard source", source: "billing.invoices", level: "warn", want: true},
		{name: "wildcard source passes", source: "billing.invoices", level: "fatal", want: false},
		{name: "exact beats wildcard", source: "billing.jobs", level: "debug", want: false},
		{name: "disabled source", source: "noisy", level: "fatal", want: true},
		{name: "disabled source without level", source: "noisy", level: "", want: true},
		{name: "unknown level passes", source: "web", level: "chatty", want: false},
		{name: "off level is always dropped", source: "billing.jobs", level: "off", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, excluded(t, EventExclusion{}, cfg, logEvent(tt.source, tt.level)))
		})
	}
}

func TestEventExclusion_ErrorTypes(t *testing.T) {
	cfg := newConfig(map[string]string{
		"@@error:*net.OpError":  "false",
		"@@error:*url.*":        "false",
		"@@error:*os.PathError": "true",
	})

	chain := func(types ...string) *models.Event {
		ev := models.NewEvent(models.EventTypeError)
		var root, last *models.ErrorInfo
		for _, typ := range types {
			e := &models.ErrorInfo{Type: typ, Message: "m"}
			if root == nil {
				root = e
			} else {
				last.Inner = e
			}
			last = e
		}
		ev.SetData(models.DataKeyError, root)
		return ev
	}

	assert.True(t, excluded(t, EventExclusion{}, cfg, chain("*net.OpError")))
	assert.True(t, excluded(t, EventExclusion{}, cfg, chain("*fmt.wrapError", "*net.OpError")), "inner errors count")
	assert.True(t, excluded(t, EventExclusion{}, cfg, chain("*url.Error")))
	assert.False(t, excluded(t, EventExclusion{}, cfg, chain("*os.PathError")))
	assert.False(t, excluded(t, EventExclusion{}, cfg, chain("*errors.errorString")))
	assert.False(t, excluded(t, EventExclusion{}, cfg, models.NewEvent(models.EventTypeError)))
}

func TestEventExclusion_TypeAndSource(t *testing.T) {
	cfg := newConfig(map[string]string{
		"@@usage:export*": "false",
		"@@404:*.ico":     "false",
	})

	usage := models.NewEvent(models.EventTypeUsage)
	usage.Source = "export-csv"
	assert.True(t, excluded(t, EventExclusion{}, cfg, usage))

	other := models.NewEvent(models.EventTypeUsage)
	other.Source = "import"
	assert.False(t, excluded(t, EventExclusion{}, cfg, other))

	notFound := models.NewEvent(models.EventTypeNotFound)
	notFound.Source = "/favicon.ico"
	assert.True(t, excluded(t, EventExclusion{}, cfg, notFound))
}

func TestEventExclusion_NoSettings(t *testing.T) {
	cfg := newConfig(nil)
	assert.False(t, excluded(t, EventExclusion{}, cfg, logEvent("web", "trace")))
}

func TestExpressionExclusion(t *testing.T) {
	plugin, err := NewExpressionExclusion()
	require.NoError(t, err)

	cfg := newConfig(map[string]string{
		"@@exclude:health": `source.startsWith("healthcheck")`,
		"@@exclude:broken": `this is not cel`,
		"@@exclude:":       `true`,
	})
	cfg.AddExcludeExpression("synthetic", `"synthetic" in tags`)

	health := logEvent("healthcheck.ping", "info")
	assert.True(t, excluded(t, plugin, cfg, health))

	tagged := models.NewEvent(models.EventTypeUsage)
	tagged.AddTags("synthetic")
	assert.True(t, excluded(t, plugin, cfg, tagged))

	normal := logEvent("web", "info")
	assert.False(t, excluded(t, plugin, cfg, normal), "broken expressions are skipped")
}

func TestExpressionExclusion_SettingOverridesConfig(t *testing.T) {
	plugin, err := NewExpressionExclusion()
	require.NoError(t, err)

	cfg := newConfig(map[string]string{"@@exclude:usage": `false`})
	cfg.AddExcludeExpression("usage", `event_type == "usage"`)

	assert.False(t, excluded(t, plugin, cfg, models.NewEvent(models.EventTypeUsage)))
}

func TestExpressionExclusion_NoExpressions(t *testing.T) {
	plugin, err := NewExpressionExclusion()
	require.NoError(t, err)
	assert.False(t, excluded(t, plugin, newConfig(nil), logEvent("web", "info")))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, levelTrace, parseLevel("TRACE"))
	assert.Equal(t, levelWarn, parseLevel(" warning "))
	assert.Equal(t, levelOff, parseLevel("false"))
	assert.Equal(t, levelUnknown, parseLevel(""))
	assert.True(t, parseBool("yes", false))
	assert.False(t, parseBool("Off", true))
	assert.True(t, parseBool("maybe", true))
}
