package chaincli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_resolveConfig(t *testing.T) {
	tests := []struct {
		name string
		file localConfig
		want localConfig
	}{
		{
			name: "empty file keeps defaults",
			file: localConfig{},
			want: localConfig{
				DB:        filepath.Join(".chainwork", "chainwork.db"),
				UserID:    localUserID,
				ListLimit: 50,
			},
		},
		{
			name: "file values win over defaults",
			file: localConfig{DB: "/tmp/other.db", ListLimit: 10},
			want: localConfig{
				DB:        "/tmp/other.db",
				UserID:    localUserID,
				ListLimit: 10,
			},
		},
		{
			name: "all fields overridden",
			file: localConfig{DB: "x.db", UserID: "u-1", ListLimit: 5, Verbose: true},
			want: localConfig{DB: "x.db", UserID: "u-1", ListLimit: 5, Verbose: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveConfig(tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_parseRunInputs(t *testing.T) {
	inputs, err := parseRunInputs([]string{"topic=observability", "length=short"}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"topic": "observability", "length": "short"}, inputs)

	inputs, err = parseRunInputs(nil, `{"topic":"observability","count":3}`)
	require.NoError(t, err)
	assert.Equal(t, "observability", inputs["topic"])
	assert.Equal(t, float64(3), inputs["count"])

	_, err = parseRunInputs([]string{"topic=x"}, `{"a":1}`)
	require.Error(t, err)

	_, err = parseRunInputs([]string{"no-separator"}, "")
	require.Error(t, err)
}
