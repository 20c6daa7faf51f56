package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar-analyzer/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "defaults are valid",
			env:  map[string]string{},
		},
		{
			name:    "gateway url without http scheme",
			env:     map[string]string{"GATEWAY_BASE_URL": "ftp://analysis.local/api"},
			wantErr: "GATEWAY_BASE_URL",
		},
		{
			name:    "blank export dir",
			env:     map[string]string{"EXPORT_DIR": " "},
			wantErr: "EXPORT_DIR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_DSN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := loadConfig()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid configuration")
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cfg)
		})
	}
}

func TestDescribeFilters(t *testing.T) {
	assert.Equal(t, "(none)", describeFilters(models.SiteFilters{}))
	assert.Equal(t, "min_score=40 region=west",
		describeFilters(models.SiteFilters{MinScore: models.Ptr(40.0), Region: models.Ptr("west")}))
}
