package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    func(t *testing.T, cfg Config)
		wantErr []string
	}{
		{
			name: "given no environment, then returns defaults",
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, DefaultServiceID, cfg.ServiceID)
				assert.Equal(t, DefaultHedgeAttempts, cfg.HedgeAttempts)
				assert.Equal(t, DefaultRegistryTTL, cfg.RegistryTTL)
				assert.False(t, cfg.Debug)
			},
		},
		{
			name: "given valid overrides, then applies them",
			env: map[string]string{
				"ORDERS_SERVICE_ID":     "billing",
				"ORDERS_HEDGE_ATTEMPTS": "3",
				"ORDERS_MAX_LATENCY":    "50ms",
				"ORDERS_DEBUG":          "true",
			},
			want: func(t *testing.T, cfg Config) {
				assert.Equal(t, "billing", cfg.ServiceID)
				assert.Equal(t, 3, cfg.HedgeAttempts)
				assert.Equal(t, 50*time.Millisecond, cfg.MaxLatency)
				assert.True(t, cfg.Debug)
			},
		},
		{
			name:    "given a malformed integer, then returns an error",
			env:     map[string]string{"ORDERS_HEDGE_ATTEMPTS": "abc"},
			wantErr: []string{"ORDERS_HEDGE_ATTEMPTS"},
		},
		{
			name: "given several malformed values, then reports each one",
			env: map[string]string{
				"ORDERS_REGISTRY_TTL": "soon",
				"ORDERS_DEBUG":        "maybe",
			},
			wantErr: []string{"ORDERS_REGISTRY_TTL", "ORDERS_DEBUG"},
		},
		{
			name:    "given a zero hedge factor, then returns an error",
			env:     map[string]string{"ORDERS_HEDGE_ATTEMPTS": "0"},
			wantErr: []string{"must be at least 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"ORDERS_SERVICE_ID", "ORDERS_HEDGE_ATTEMPTS", "ORDERS_MAX_LATENCY",
				"ORDERS_DEBUG", "ORDERS_REGISTRY_TTL",
			} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if len(tt.wantErr) > 0 {
				require.Error(t, err)
				for _, msg := range tt.wantErr {
					assert.Contains(t, err.Error(), msg)
				}
				return
			}

			require.NoError(t, err)
			tt.want(t, cfg)
		})
	}
}
