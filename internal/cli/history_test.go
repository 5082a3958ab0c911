package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/triage-go/internal/models"
	"github.com/raphaelgruber/triage-go/internal/store"
)

func TestResolveSessionID(t *testing.T) {
	ctx := context.Background()
	st := store.New(nil, nil, testLogger())

	now := time.Now()
	for _, id := range []string{
		"2f1c9a33-0000-4000-8000-000000000001",
		"2f1d0000-0000-4000-8000-000000000002",
		"2f1c9b44-0000-4000-8000-000000000003",
	} {
		require.NoError(t, st.Upsert(ctx, models.Session{ID: id, Title: "t", Timestamp: now}))
	}

	tests := []struct {
		name    string
		prefix  string
		want    string
		wantErr string
	}{
		{
			name:   "full id",
			prefix: "2f1d0000-0000-4000-8000-000000000002",
			want:   "2f1d0000-0000-4000-8000-000000000002",
		},
		{
			name:   "unique prefix",
			prefix: "2f1c9a",
			want:   "2f1c9a33-0000-4000-8000-000000000001",
		},
		{
			name:    "ambiguous prefix",
			prefix:  "2f1c",
			wantErr: "ambiguous",
		},
		{
			name:    "unknown",
			prefix:  "ffff",
			wantErr: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSessionID(st, tt.prefix)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
