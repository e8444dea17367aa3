package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthService_Liveness(t *testing.T) {
	svc := NewHealthService(NewMockHealthCheckStorage(t), nil, discardLogger())
	assert.NoError(t, svc.Liveness(context.Background()))
}

func TestHealthService_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		probes     map[string]Probe
		wantErr    bool
		wantStatus map[string]string
	}{
		{
			name:       "database only",
			wantStatus: map[string]string{"db": "ok"},
		},
		{
			name:       "database down",
			dbErr:      errors.New("connection refused"),
			wantErr:    true,
			wantStatus: map[string]string{"db": "error: connection refused"},
		},
		{
			name: "probe failing",
			probes: map[string]Probe{
				"kafka": func(context.Context) error { return errors.New("no brokers") },
			},
			wantErr:    true,
			wantStatus: map[string]string{"db": "ok", "kafka": "error: no brokers"},
		},
		{
			name: "probe healthy",
			probes: map[string]Probe{
				"kafka": func(ctx context.Context) error {
					_, ok := ctx.Deadline()
					if !ok {
						return errors.New("probe ran without a deadline")
					}
					return nil
				},
			},
			wantStatus: map[string]string{"db": "ok", "kafka": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMockHealthCheckStorage(t)
			store.On("Ping", mock.Anything).Return(tt.dbErr).Once()

			status, err := NewHealthService(store, tt.probes, discardLogger()).Readiness(context.Background())
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}
