package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/collections-engine/allocation"
)

func TestGetConfig_CorruptDateIsAnError(t *testing.T) {
	// GIVEN: a stored config whose date column was damaged outside the store
	// WHEN: loading it
	// THEN: the scan fails instead of returning a zero date

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	day := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertConfig(ctx, allocation.LevelConfig{
		ID:        "cfg-1",
		Scope:     "bucket-a",
		Date:      day,
		Split:     allocation.NewSplit(25, 25, 25, 25),
		State:     allocation.ConfigSuggested,
		Active:    true,
		CreatedBy: "system",
		CreatedAt: day,
	}))

	_, err = s.db.ExecContext(ctx, `UPDATE level_configs SET date = 'june' WHERE id = 'cfg-1'`)
	require.NoError(t, err)

	cfg, err := s.GetConfig(ctx, "cfg-1")
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), `bad date "june"`)
	assert.NotErrorIs(t, err, allocation.ErrConfigNotFound)
}
