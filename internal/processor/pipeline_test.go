package processor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylenessen/ramble/internal/config"
	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/organizer"
	"github.com/kylenessen/ramble/internal/storage"
	"github.com/kylenessen/ramble/internal/types"
)

// These tests run the pipeline against a real filesystem store and the real
// organizer, faking only the two remote collaborators.

func newPipeline(t *testing.T, transcriber *fakeTranscriber, enhancer *fakeEnhancer) (*Processor, *storage.Local, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocal(root)
	require.NoError(t, err)

	org := organizer.New(store, config.ProcessingConfig{CompressAudio: false}, "assemblyai", "openai")
	p := New(Deps{
		Store:           store,
		Transcriber:     transcriber,
		Enhancer:        enhancer,
		Organizer:       org,
		TranscribeGuard: newFastGuard("transcription"),
		EnhanceGuard:    newFastGuard("llm"),
	})
	return p, store, root
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestPipeline_EndToEnd(t *testing.T) {
	transcriber := &fakeTranscriber{errOn: map[string]error{}}
	enhancer := &fakeEnhancer{}
	p, _, root := newPipeline(t, transcriber, enhancer)

	inboxFile := filepath.Join(root, storage.FolderInbox, "note1.m4a")
	require.NoError(t, os.WriteFile(inboxFile, []byte("fake audio"), 0o644))

	require.NoError(t, p.ScanInbox(context.Background()))

	assert.Empty(t, dirNames(t, filepath.Join(root, storage.FolderInbox)))
	assert.Empty(t, dirNames(t, filepath.Join(root, storage.FolderProcessing)))
	assert.Empty(t, dirNames(t, filepath.Join(root, storage.FolderFailed)))

	bundles := dirNames(t, filepath.Join(root, storage.FolderProcessed))
	require.Len(t, bundles, 1)
	assert.Contains(t, bundles[0], "hello-world")

	bundleDir := filepath.Join(root, storage.FolderProcessed, bundles[0])
	assert.ElementsMatch(t,
		[]string{"original.m4a", "transcript_raw.md", "hello-world.md", "metadata.json"},
		dirNames(t, bundleDir))

	metaRaw, err := os.ReadFile(filepath.Join(bundleDir, "metadata.json"))
	require.NoError(t, err)
	var meta types.BundleMetadata
	require.NoError(t, json.Unmarshal(metaRaw, &meta))
	assert.Equal(t, "note1.m4a", meta.OriginalFilename)
	assert.Equal(t, "hello-world", meta.SessionTitle)
	assert.Equal(t, 2, meta.WordCount)
	assert.Equal(t, 4.5, meta.DurationSeconds)

	content, err := os.ReadFile(filepath.Join(bundleDir, "hello-world.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Hello World\n\nHello world.\n", string(content))

	transcriptDoc, err := os.ReadFile(filepath.Join(bundleDir, "transcript_raw.md"))
	require.NoError(t, err)
	assert.Contains(t, string(transcriptDoc), "hello world")
}

func TestPipeline_EnhancementFailureLeavesAudioInFailed(t *testing.T) {
	transcriber := &fakeTranscriber{errOn: map[string]error{}}
	enhancer := &fakeEnhancer{err: faults.Contentf("llm.parse", "no JSON object in model response")}
	p, _, root := newPipeline(t, transcriber, enhancer)

	inboxFile := filepath.Join(root, storage.FolderInbox, "note1.m4a")
	require.NoError(t, os.WriteFile(inboxFile, []byte("fake audio"), 0o644))

	require.NoError(t, p.ScanInbox(context.Background()))

	assert.Equal(t, []string{"note1.m4a"}, dirNames(t, filepath.Join(root, storage.FolderFailed)))
	assert.Empty(t, dirNames(t, filepath.Join(root, storage.FolderInbox)))
	assert.Empty(t, dirNames(t, filepath.Join(root, storage.FolderProcessing)))
	assert.Empty(t, dirNames(t, filepath.Join(root, storage.FolderProcessed)), "no partial bundle")
}

func TestPipeline_SecondScanAfterEmptyInbox(t *testing.T) {
	transcriber := &fakeTranscriber{errOn: map[string]error{}}
	p, _, root := newPipeline(t, transcriber, &fakeEnhancer{})

	require.NoError(t, p.ScanInbox(context.Background()))
	assert.Zero(t, transcriber.calls)

	// A file arriving between scans is picked up by the next one.
	inboxFile := filepath.Join(root, storage.FolderInbox, "note2.m4a")
	require.NoError(t, os.WriteFile(inboxFile, []byte("fake audio"), 0o644))

	require.NoError(t, p.ScanInbox(context.Background()))
	assert.Equal(t, 1, transcriber.calls)
	require.Len(t, dirNames(t, filepath.Join(root, storage.FolderProcessed)), 1)
}
