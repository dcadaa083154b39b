package cel

// ExclusionExpressionExamples are expressions the exclusion plugin accepts.
// Each returns true for events that should be dropped.
var ExclusionExpressionExamples = map[string]string{
	"by_type":          `event_type == "usage"`,
	"by_source_prefix": `source.startsWith("healthcheck")`,
	"message_contains": `message.contains("context canceled")`,
	"by_level":         `event_type == "log" && level in ["trace", "debug"]`,
	"tagged":           `"synthetic" in tags`,
	"error_type":       `"@error" in data && data["@error"].type == "*net.OpError"`,
	"user_property":    `has(data.tenant) && data.tenant == "load-test"`,
	"numeric_value":    `event_type == "usage" && value < 1.0`,
	"combined":         `(event_type == "404" || event_type == "log") && source.endsWith(".ico")`,
}
