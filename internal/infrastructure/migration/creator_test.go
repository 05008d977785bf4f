package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMigrationWritesFilePair(t *testing.T) {
	dir := t.TempDir()

	mf, err := CreateMigration(dir, "Add Fee Structures", "fee structures table")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(mf.UpPath, ".up.sql"))
	assert.True(t, strings.HasSuffix(mf.DownPath, ".down.sql"))
	assert.Contains(t, filepath.Base(mf.UpPath), "add_fee_structures")

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: Add Fee Structures")
	assert.Contains(t, string(up), "-- Description: fee structures table")

	_, err = os.Stat(mf.DownPath)
	require.NoError(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "AddStudents", "addstudents"},
		{"spaces to underscores", "add fee ledgers", "add_fee_ledgers"},
		{"collapses separators", "add --  ledgers", "add_ledgers"},
		{"strips punctuation", "add.fee!ledgers", "addfeeledgers"},
		{"trims trailing separator", "add ledgers ", "add_ledgers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestListMigrationsReturnsSortedBaseNames(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{
		"20250102000000_second.up.sql",
		"20250102000000_second.down.sql",
		"20250101000000_first.up.sql",
		"20250101000000_first.down.sql",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- sql\n"), 0o644))
	}

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"20250101000000_first",
		"20250102000000_second",
	}, migrations)
}

func TestListMigrationsMissingDirIsEmpty(t *testing.T) {
	migrations, err := ListMigrations(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, migrations)
}
