// Package organizer assembles the output bundle for a processed recording
// (audio, raw transcript, enhanced content, metadata) and publishes it to the
// processed folder in storage.
package organizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kylenessen/ramble/internal/config"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/storage"
	"github.com/kylenessen/ramble/internal/transcription"
	"github.com/kylenessen/ramble/internal/types"
)

// Artifact filenames inside a bundle.
const (
	compressedAudioName = "original_compressed.opus"
	transcriptFileName  = "transcript_raw.md"
	metadataFileName    = "metadata.json"
)

// opusBitrates maps the configured compression quality to an opus bitrate.
var opusBitrates = map[string]string{
	"low":    "64k",
	"medium": "128k",
	"high":   "192k",
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Bundle describes a published output bundle.
type Bundle struct {
	Folder   string
	Metadata types.BundleMetadata
}

// Organizer builds bundles locally, then delegates the upload to storage.
// On any failure the partial local bundle is discarded and nothing dangling
// is left referenced in storage.
type Organizer struct {
	store      storage.Store
	cfg        config.ProcessingConfig
	transcSvc  string
	llmService string

	runner commandRunner
	ffmpeg string
	now    func() time.Time
	log    *logger.Logger
}

// New creates an organizer publishing through store. The service names are
// recorded in each bundle's metadata document.
func New(store storage.Store, cfg config.ProcessingConfig, transcriptionService, llmService string) *Organizer {
	return &Organizer{
		store:      store,
		cfg:        cfg,
		transcSvc:  transcriptionService,
		llmService: llmService,
		runner:     execRunner{},
		ffmpeg:     "ffmpeg",
		now:        time.Now,
		log:        logger.New(),
	}
}

// AssembleAndPublish writes the artifact set for one successfully processed
// recording and uploads it under processed/<date>_<title>/.
func (o *Organizer) AssembleAndPublish(ctx context.Context, content *types.EnhancedContent, audioPath string, transcript *types.TranscriptResult, recordedAt time.Time) (*Bundle, error) {
	folder := cleanFolderName(o.sessionDate(content, recordedAt) + "_" + content.SessionTitle)
	log := o.log.WithField("bundle", folder)
	log.Info("assembling output bundle")

	tempDir, err := os.MkdirTemp("", "ramble-bundle-*")
	if err != nil {
		return nil, fmt.Errorf("create bundle workspace: %w", err)
	}
	defer os.RemoveAll(tempDir)

	audioName, err := o.writeAudio(ctx, audioPath, tempDir)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(tempDir, transcriptFileName), []byte(transcription.FormatMarkdown(transcript)), 0o644); err != nil {
		return nil, fmt.Errorf("write transcript document: %w", err)
	}

	contentName := cleanContentFilename(content.SessionTitle)
	doc := content.Content
	if !strings.HasSuffix(doc, "\n") {
		doc += "\n"
	}
	if err := os.WriteFile(filepath.Join(tempDir, contentName), []byte(doc), 0o644); err != nil {
		return nil, fmt.Errorf("write content document: %w", err)
	}

	meta := o.buildMetadata(content, audioPath, transcript, tempDir, audioName, contentName)
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, metadataFileName), metaJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata document: %w", err)
	}

	if err := o.publish(ctx, tempDir, folder); err != nil {
		return nil, err
	}

	log.Info("output bundle published")
	return &Bundle{Folder: folder, Metadata: meta}, nil
}

// sessionDate prefers the speaker-declared override date, then the recording
// time, then the wall clock.
func (o *Organizer) sessionDate(content *types.EnhancedContent, recordedAt time.Time) string {
	if content.OverrideDate != "" {
		if ts, err := time.Parse("2006-01-02", content.OverrideDate); err == nil {
			return ts.Format("2006-01-02_15-04")
		}
		o.log.WithField("override_date", content.OverrideDate).Warn("invalid override date format")
	}
	if !recordedAt.IsZero() {
		return recordedAt.Format("2006-01-02_15-04")
	}
	return o.now().Format("2006-01-02_15-04")
}

// writeAudio places the audio artifact in the bundle workspace, compressing
// to opus when configured and falling back to a plain copy if ffmpeg fails.
func (o *Organizer) writeAudio(ctx context.Context, audioPath, tempDir string) (string, error) {
	originalName := "original" + filepath.Ext(audioPath)

	if !o.cfg.CompressAudio {
		return originalName, copyFile(audioPath, filepath.Join(tempDir, originalName))
	}

	bitrate, ok := opusBitrates[o.cfg.CompressionQuality]
	if !ok {
		bitrate = opusBitrates["medium"]
	}
	out := filepath.Join(tempDir, compressedAudioName)
	err := o.runner.Run(ctx, o.ffmpeg,
		"-i", audioPath,
		"-c:a", "libopus",
		"-b:a", bitrate,
		"-y", out,
	)
	if err != nil {
		o.log.WithError(err).Warn("audio compression failed, copying original")
		return originalName, copyFile(audioPath, filepath.Join(tempDir, originalName))
	}
	return compressedAudioName, nil
}

func (o *Organizer) buildMetadata(content *types.EnhancedContent, audioPath string, transcript *types.TranscriptResult, tempDir, audioName, contentName string) types.BundleMetadata {
	meta := types.BundleMetadata{
		ProcessingDate:       o.now().Format(time.RFC3339),
		OriginalFilename:     filepath.Base(audioPath),
		SessionTitle:         content.SessionTitle,
		OverrideDate:         content.OverrideDate,
		DurationSeconds:      float64(transcript.AudioDuration) / 1000,
		TranscriptionService: o.transcSvc,
		LLMService:           o.llmService,
		AudioFilename:        audioName,
		TranscriptFilename:   transcriptFileName,
		ContentFilename:      contentName,
		WordCount:            len(strings.Fields(transcript.Text)),
	}
	meta.OriginalSizeMB = fileSizeMB(audioPath)
	if audioName == compressedAudioName {
		meta.CompressedSizeMB = fileSizeMB(filepath.Join(tempDir, audioName))
	}
	return meta
}

// publish uploads every bundle artifact. A failed upload removes the files
// already uploaded, best effort, so no dangling partial bundle remains.
func (o *Organizer) publish(ctx context.Context, tempDir, folder string) error {
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		return fmt.Errorf("read bundle workspace: %w", err)
	}

	var uploaded []string
	for _, e := range entries {
		remote := o.store.ProcessedPath(folder, e.Name())
		if err := o.store.Upload(ctx, filepath.Join(tempDir, e.Name()), remote); err != nil {
			for _, loc := range uploaded {
				if derr := o.store.Delete(ctx, loc); derr != nil {
					o.log.WithError(derr).WithField("location", loc).Error("failed to remove partial upload")
				}
			}
			return fmt.Errorf("upload %s: %w", e.Name(), err)
		}
		uploaded = append(uploaded, remote)
	}
	return nil
}

// cleanFolderName makes a bundle folder name filesystem safe and bounded.
func cleanFolderName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '-'
		}
		return r
	}, name)
	name = strings.ReplaceAll(name, " ", "_")
	// Truncate on runes so a multibyte title is never split mid-character.
	if r := []rune(name); len(r) > 100 {
		name = string(r[:97]) + "..."
	}
	return name
}

// cleanContentFilename derives the content document name from the session
// title: safe characters, bounded length, .md extension.
func cleanContentFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) {
			return '-'
		}
		return r
	}, title)
	if r := []rune(name); len(r) > 40 {
		name = string(r[:37]) + "..."
	}
	if !strings.HasSuffix(name, ".md") {
		name += ".md"
	}
	return name
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	mb := float64(info.Size()) / (1024 * 1024)
	return float64(int(mb*100+0.5)) / 100
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
