package signals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTables(t *testing.T) {
	t.Parallel()

	t.Run("partial file overrides defaults", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "tables.yaml")
		content := []byte("advanced_tactics:\n  - command-and-control\n")
		require.NoError(t, os.WriteFile(path, content, 0o644))

		tables, err := LoadTables(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"command-and-control"}, tables.AdvancedTactics)
		// Untouched sections keep their built-in values.
		assert.Equal(t, DefaultTables().StealthyTactics, tables.StealthyTactics)
		assert.NotEmpty(t, tables.Industries)
	})

	t.Run("missing file fails", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTables(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml fails", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(":\t not yaml"), 0o644))
		_, err := LoadTables(path)
		assert.Error(t, err)
	})
}
