package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/testutil"
)

func TestSeedTestData(t *testing.T) {
	gdb := testutil.NewDB(t)

	profiles, err := db.SeedTestData(gdb, 12)
	require.NoError(t, err)
	require.Len(t, profiles, 12)
	for _, p := range profiles {
		assert.NotZero(t, p.ID)
		assert.True(t, p.Intent.Valid())
		assert.Len(t, p.Values, 3)
	}

	var matches []db.Match
	require.NoError(t, gdb.Find(&matches).Error)
	assert.NotEmpty(t, matches)
	for _, m := range matches {
		assert.Equal(t, db.MatchPending, m.Status)
		assert.Equal(t, db.PairKey(m.User1, m.User2), m.PairKey)
	}

	// reseeding starts from a clean slate
	again, err := db.SeedTestData(gdb, 4)
	require.NoError(t, err)
	var count int64
	require.NoError(t, gdb.Model(&db.Profile{}).Count(&count).Error)
	assert.Equal(t, int64(len(again)), count)
}
