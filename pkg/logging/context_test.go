package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithReferenceID(ctx, "ref-1")
	ctx = WithPlugin(ctx, "DuplicateCheckerPlugin")
	ctx = WithServiceName(ctx, "courier")

	assert.Equal(t, []interface{}{
		"reference_id", "ref-1",
		"plugin", "DuplicateCheckerPlugin",
		"service_name", "courier",
	}, GetLogFields(ctx))
}
