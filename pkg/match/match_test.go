package match

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		value   string
		want    bool
	}{
		{"*password*", "UserPassword", true},
		{"*password*", "secret", false},
		{"Api*", "apikey", true},
		{"*", "", true},
		{"exact", "Exact", true},
		{"exact", "exactly", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, Wildcard(tt.pattern, tt.value))
		})
	}
}

func TestLookup(t *testing.T) {
	settings := map[string]string{
		"@@log:*":            "warn",
		"@@log:courier.*":    "debug",
		"@@log:courier.http": "error",
	}

	v, ok := Lookup(settings, "@@log:courier.http")
	assert.True(t, ok)
	assert.Equal(t, "error", v)

	v, ok = Lookup(settings, "@@log:courier.queue")
	assert.True(t, ok)
	assert.Equal(t, "debug", v)

	v, ok = Lookup(settings, "@@log:other")
	assert.True(t, ok)
	assert.Equal(t, "warn", v)

	_, ok = Lookup(settings, "@@error:x")
	assert.False(t, ok)
}

func TestPrune(t *testing.T) {
	in := map[string]interface{}{
		"name":     "bob",
		"Password": "hunter2",
		"nested": map[string]interface{}{
			"apiKey": "k",
			"keep":   1,
			"deeper": map[string]interface{}{"x": 1},
		},
		"list": []interface{}{map[string]interface{}{"password_hash": "h", "id": 2}},
	}

	out := Prune(in, []string{"*password*", "apikey"}, 0).(map[string]interface{})
	assert.Equal(t, "bob", out["name"])
	assert.NotContains(t, out, "Password")

	nested := out["nested"].(map[string]interface{})
	assert.NotContains(t, nested, "apiKey")
	assert.Equal(t, json.Number("1"), nested["keep"])

	item := out["list"].([]interface{})[0].(map[string]interface{})
	assert.NotContains(t, item, "password_hash")
	assert.Equal(t, json.Number("2"), item["id"])

	shallow := Prune(in, nil, 2).(map[string]interface{})
	assert.Nil(t, shallow["nested"].(map[string]interface{})["deeper"])
}

func TestPrune_KeepsLargeIntegers(t *testing.T) {
	out := Prune(map[string]interface{}{"order_id": int64(9007199254740993)}, nil, 0).(map[string]interface{})
	assert.Equal(t, json.Number("9007199254740993"), out["order_id"])

	body, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Equal(t, `{"order_id":9007199254740993}`, string(body))
}

func TestPrune_Scalar(t *testing.T) {
	assert.Equal(t, "plain", Prune("plain", []string{"*"}, 0))
	assert.Nil(t, Prune(make(chan int), nil, 0))
}
