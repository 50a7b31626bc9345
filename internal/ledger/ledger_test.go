package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kylenessen/ramble/internal/types"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetList()[0])
	require.NoError(t, err)
	return rows
}

func sampleMeta(title string) types.BundleMetadata {
	return types.BundleMetadata{
		ProcessingDate:   "2025-06-07T11:06:00Z",
		SessionTitle:     title,
		OriginalFilename: "note1.m4a",
		DurationSeconds:  4.5,
		WordCount:        2,
	}
}

func TestRecord_CreatesWorkbookWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.xlsx")
	l := New(path)

	require.NoError(t, l.Record(sampleMeta("hello-world"), "2025-06-07_11-06_hello-world", 0.95))

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "Processed At", rows[0][0])
	assert.Equal(t, "Session Title", rows[0][1])
	assert.Equal(t, "hello-world", rows[1][1])
	assert.Equal(t, "note1.m4a", rows[1][2])
	assert.Equal(t, "2025-06-07_11-06_hello-world", rows[1][3])
}

func TestRecord_AppendsToExistingWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.xlsx")
	l := New(path)

	require.NoError(t, l.Record(sampleMeta("first"), "folder-1", 0.9))
	require.NoError(t, l.Record(sampleMeta("second"), "folder-2", 0.8))
	require.NoError(t, l.Record(sampleMeta("third"), "folder-3", 0.7))

	rows := readRows(t, path)
	require.Len(t, rows, 4, "header plus three sessions")
	assert.Equal(t, "first", rows[1][1])
	assert.Equal(t, "second", rows[2][1])
	assert.Equal(t, "third", rows[3][1])
}

func TestRecord_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.xlsx")

	require.NoError(t, New(path).Record(sampleMeta("first"), "folder-1", 0.9))
	require.NoError(t, New(path).Record(sampleMeta("second"), "folder-2", 0.8))

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "second", rows[2][1])
}
