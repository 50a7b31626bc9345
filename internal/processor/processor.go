// Package processor drives recordings through the processing pipeline:
// inbox -> processing -> (transcribe -> enhance -> organize) -> processed,
// with failures relocated to the failed folder.
package processor

import (
	"context"
	"os"
	"time"

	"github.com/kylenessen/ramble/internal/faults"
	"github.com/kylenessen/ramble/internal/llm"
	"github.com/kylenessen/ramble/internal/logger"
	"github.com/kylenessen/ramble/internal/metrics"
	"github.com/kylenessen/ramble/internal/organizer"
	"github.com/kylenessen/ramble/internal/resilience"
	"github.com/kylenessen/ramble/internal/storage"
	"github.com/kylenessen/ramble/internal/transcription"
	"github.com/kylenessen/ramble/internal/types"
)

// Organizer assembles and publishes the output bundle for one recording.
type Organizer interface {
	AssembleAndPublish(ctx context.Context, content *types.EnhancedContent, audioPath string, transcript *types.TranscriptResult, recordedAt time.Time) (*organizer.Bundle, error)
}

// SessionLedger records successfully processed sessions.
type SessionLedger interface {
	Record(meta types.BundleMetadata, folder string, confidence float64) error
}

// Deps are the processor's collaborators. Ledger and Metrics are optional.
// The guards are built once at startup; their breakers accumulate failures
// across items, which is the point: they detect a sick collaborator, not a
// bad recording.
type Deps struct {
	Store           storage.Store
	Transcriber     transcription.Transcriber
	Enhancer        llm.Enhancer
	Organizer       Organizer
	TranscribeGuard *resilience.Guard
	EnhanceGuard    *resilience.Guard
	Ledger          SessionLedger
	Metrics         *metrics.Metrics
}

// Processor is the single-worker pipeline orchestrator. Items within one scan
// are processed strictly sequentially; claiming an item (moving it out of the
// inbox) is what takes ownership of it.
type Processor struct {
	deps Deps
	log  *logger.Logger
}

// New creates a processor from its collaborators.
func New(deps Deps) *Processor {
	return &Processor{deps: deps, log: logger.New()}
}

// ScanInbox processes every pending recording in the inbox. An empty inbox is
// a no-op. One item's failure never aborts the scan of subsequent items: each
// failure is logged and the item relocated, then the scan moves on. The
// returned error is reserved for systemic failures (the listing call itself),
// which the caller answers with a longer retry interval.
func (p *Processor) ScanInbox(ctx context.Context) error {
	p.countScan()

	items, err := p.deps.Store.ListPending(ctx)
	if err != nil {
		p.countScanError()
		return err
	}
	if len(items) == 0 {
		return nil
	}
	p.log.WithField("count", len(items)).Info("found files to process")

	for _, item := range items {
		if err := p.processFile(ctx, item); err != nil {
			if faults.Is(err, faults.KindClaimConflict) {
				p.log.WithItem(item.Name).Info("item already claimed, skipping")
				continue
			}
			p.log.WithError(err).WithField("item", item.Name).Error("failed to process recording")
		}
	}
	return nil
}

// processFile runs one recording through the full state sequence. After the
// claim succeeds, any failure diverts the file to the failed folder; before
// the claim, the file simply stays in the inbox for the next scan.
func (p *Processor) processFile(ctx context.Context, item types.PendingItem) error {
	log := p.log.WithItem(item.Name)
	log.Info("processing recording")

	processingLoc, err := p.timedClaim(ctx, item)
	if err != nil {
		return err
	}

	localPath, err := p.timedDownload(ctx, processingLoc, item.Name)
	if err != nil {
		return p.abort(ctx, item.Name, processingLoc, err)
	}
	defer os.Remove(localPath)

	transcript, err := p.transcribe(ctx, localPath)
	if err != nil {
		return p.abort(ctx, item.Name, processingLoc, err)
	}

	content, err := p.enhance(ctx, transcript, item.CreatedTime)
	if err != nil {
		return p.abort(ctx, item.Name, processingLoc, err)
	}

	bundle, err := p.organize(ctx, content, localPath, transcript, item.CreatedTime)
	if err != nil {
		return p.abort(ctx, item.Name, processingLoc, err)
	}

	p.finalize(ctx, processingLoc)
	p.recordSession(bundle, transcript)
	p.countProcessed()
	log.WithField("bundle", bundle.Folder).Info("successfully processed")
	return nil
}

func (p *Processor) timedClaim(ctx context.Context, item types.PendingItem) (string, error) {
	defer p.observe(metrics.StageClaim, time.Now())
	return p.deps.Store.Claim(ctx, item)
}

func (p *Processor) timedDownload(ctx context.Context, location, name string) (string, error) {
	defer p.observe(metrics.StageDownload, time.Now())
	return p.deps.Store.Download(ctx, location, name)
}

func (p *Processor) transcribe(ctx context.Context, localPath string) (*types.TranscriptResult, error) {
	defer p.observe(metrics.StageTranscribe, time.Now())

	var transcript *types.TranscriptResult
	err := p.deps.TranscribeGuard.Call(ctx, func() error {
		t, err := p.deps.Transcriber.Transcribe(ctx, localPath)
		if err != nil {
			return err
		}
		transcript = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transcript, nil
}

func (p *Processor) enhance(ctx context.Context, transcript *types.TranscriptResult, recordedAt time.Time) (*types.EnhancedContent, error) {
	defer p.observe(metrics.StageEnhance, time.Now())

	var content *types.EnhancedContent
	err := p.deps.EnhanceGuard.Call(ctx, func() error {
		c, err := p.deps.Enhancer.Enhance(ctx, transcript, recordedAt)
		if err != nil {
			return err
		}
		content = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (p *Processor) organize(ctx context.Context, content *types.EnhancedContent, localPath string, transcript *types.TranscriptResult, recordedAt time.Time) (*organizer.Bundle, error) {
	defer p.observe(metrics.StageOrganize, time.Now())
	return p.deps.Organizer.AssembleAndPublish(ctx, content, localPath, transcript, recordedAt)
}

// finalize removes the processing-location copy. A failure here is logged but
// does not fail the item: the bundle is already published.
func (p *Processor) finalize(ctx context.Context, processingLoc string) {
	defer p.observe(metrics.StageFinalize, time.Now())
	if err := p.deps.Store.Delete(ctx, processingLoc); err != nil {
		p.log.WithError(err).WithField("location", processingLoc).Error("failed to delete processing copy")
	}
}

// abort moves the claimed file to the failed folder and surfaces cause. The
// move itself is best effort: when it also fails, the file stays stuck in
// processing and an operator has to intervene, so say so loudly.
func (p *Processor) abort(ctx context.Context, name, processingLoc string, cause error) error {
	p.countFailed()
	if err := p.deps.Store.MarkFailedFrom(ctx, processingLoc); err != nil {
		p.log.WithError(err).WithField("item", name).
			WithField("location", processingLoc).
			Error("could not move item to failed folder; file left in processing, manual recovery required")
	}
	return cause
}

func (p *Processor) recordSession(bundle *organizer.Bundle, transcript *types.TranscriptResult) {
	if p.deps.Ledger == nil {
		return
	}
	if err := p.deps.Ledger.Record(bundle.Metadata, bundle.Folder, transcript.Confidence); err != nil {
		p.log.WithError(err).Warn("failed to record session in ledger")
	}
}

func (p *Processor) observe(stage string, start time.Time) {
	if p.deps.Metrics != nil {
		p.deps.Metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (p *Processor) countScan() {
	if p.deps.Metrics != nil {
		p.deps.Metrics.Scans.Inc()
	}
}

func (p *Processor) countScanError() {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ScanErrors.Inc()
	}
}

func (p *Processor) countProcessed() {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ItemsProcessed.Inc()
	}
}

func (p *Processor) countFailed() {
	if p.deps.Metrics != nil {
		p.deps.Metrics.ItemsFailed.Inc()
	}
}
