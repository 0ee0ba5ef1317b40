package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_JSON(t *testing.T) {
	var v struct {
		A Duration `json:"a"`
		B Duration `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"24h","b":1000000000}`), &v))
	assert.Equal(t, 24*time.Hour, v.A.Duration)
	assert.Equal(t, time.Second, v.B.Duration)

	out, err := json.Marshal(Duration{90 * time.Second})
	require.NoError(t, err)
	assert.JSONEq(t, `"1m30s"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a":"soon"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"a":true}`), &v))
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		A Duration `yaml:"a"`
		B Duration `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 5m\nb: 2000\n"), &v))
	assert.Equal(t, 5*time.Minute, v.A.Duration)
	assert.Equal(t, 2*time.Microsecond, v.B.Duration)

	assert.Error(t, yaml.Unmarshal([]byte("a: later\n"), &v))
}
