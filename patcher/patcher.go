// Package patcher drives the per-patch apply state machine: download with
// mirror failover, verify, dispatch to the right carrier, merge into the
// target GRF, and record the patch as applied.
//
// Grounded on original_source/beam-core/src/patcher.rs, translated from its
// async/await shape into a purely sequential Go call chain — the spec
// forbids parallelism across patches, so there is nothing here for
// goroutines to buy.
package patcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dselans/beampatch/archive/beam"
	"github.com/dselans/beampatch/archive/gpf"
	"github.com/dselans/beampatch/archive/rgz"
	"github.com/dselans/beampatch/archive/thor"
	"github.com/dselans/beampatch/audit"
	"github.com/dselans/beampatch/grf"
	"github.com/dselans/beampatch/mirror"
	"github.com/dselans/beampatch/mirror/health"
	"github.com/dselans/beampatch/patchcache"
	"github.com/dselans/beampatch/patcherr"
)

// Config is the subset of the host application's configuration the core
// needs. It is accepted pre-parsed: loading it from YAML is the config
// package's job, not this one's.
type Config struct {
	Mirrors          []mirror.Mirror
	PatchListURL     string
	VerifyChecksums  bool
	TargetGRF        string
	AllowManualPatch bool
	GameDirectory    string // empty means "use the executable's directory"

	// AuditSink is optional. When set, every ApplyOne/ApplyManual outcome
	// is recorded to it; a nil sink simply means no audit trail is kept.
	AuditSink audit.Sink

	// HealthTracker is optional. When set, it reorders mirror candidates
	// away from recently-failing ones; a nil tracker falls back to the
	// mirror client's own in-process tracker.
	HealthTracker health.Tracker
}

// ProgressSample reports either download progress for the patch currently
// downloading, or apply progress across the pending patch list.
type ProgressSample struct {
	Filename        string
	BytesDownloaded uint64
	BytesTotal      uint64
	Index           int
	Total           int
	Status          string
}

// Patcher is the orchestrator: one instance composes a mirror client, the
// applied-patches cache, and the carrier/GRF layer beneath it.
type Patcher struct {
	cfg     Config
	mc      *mirror.Client
	cache   *patchcache.AppliedSet
	tempDir string

	progressCh chan ProgressSample
}

var log = logrus.WithField("pkg", "patcher")

// New builds a Patcher. It creates the applied-patches cache directory and
// a scratch temp directory for in-flight downloads, mirroring the source
// patcher's beam_patcher temp dir.
func New(cfg Config) (*Patcher, *patcherr.Error) {
	baseDir, err := resolveBaseDir(cfg.GameDirectory)
	if err != nil {
		return nil, err
	}

	cache, err := patchcache.Open(baseDir)
	if err != nil {
		return nil, err
	}

	tempDir := filepath.Join(os.TempDir(), "beam_patcher")
	if mkErr := os.MkdirAll(tempDir, 0o755); mkErr != nil {
		return nil, patcherr.Wrap(patcherr.Io, mkErr, "creating patcher temp directory")
	}

	mc := mirror.NewClient(cfg.VerifyChecksums)
	if cfg.HealthTracker != nil {
		mc = mc.WithHealthTracker(cfg.HealthTracker)
	}

	return &Patcher{
		cfg:        cfg,
		mc:         mc,
		cache:      cache,
		tempDir:    tempDir,
		progressCh: make(chan ProgressSample, 64),
	}, nil
}

func resolveBaseDir(gameDir string) (string, *patcherr.Error) {
	if gameDir != "" {
		return gameDir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", patcherr.Wrap(patcherr.Io, err, "resolving executable directory")
	}
	return filepath.Dir(exe), nil
}

// Progress returns the channel progress samples are published to. Readers
// must keep up; the channel is buffered but not unbounded.
func (p *Patcher) Progress() <-chan ProgressSample {
	return p.progressCh
}

func (p *Patcher) emit(sample ProgressSample) {
	select {
	case p.progressCh <- sample:
	default:
		log.Warn("progress channel full, dropping sample")
	}
}

// ListPending downloads the patch list and returns every patch not yet in
// the applied set, preserving the list's original order.
func (p *Patcher) ListPending(ctx context.Context) ([]mirror.PatchInfo, *patcherr.Error) {
	log.Info("checking for available patches")

	all, err := p.mc.FetchPatchList(ctx, p.cfg.PatchListURL)
	if err != nil {
		return nil, err
	}

	applied, err := p.cache.Load()
	if err != nil {
		return nil, err
	}

	pending := make([]mirror.PatchInfo, 0, len(all))
	for _, patch := range all {
		if _, ok := applied[patch.Filename]; !ok {
			pending = append(pending, patch)
		}
	}

	log.WithFields(logrus.Fields{
		"total":   len(all),
		"applied": len(applied),
		"pending": len(pending),
	}).Info("found patches")

	return pending, nil
}

// CountAvailable is a convenience wrapper over ListPending.
func (p *Patcher) CountAvailable(ctx context.Context) (int, *patcherr.Error) {
	pending, err := p.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

// ApplyAll applies every pending patch in list order, stopping at the
// first failure.
func (p *Patcher) ApplyAll(ctx context.Context) *patcherr.Error {
	pending, err := p.ListPending(ctx)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{"count": len(pending)}).Info("applying pending patches")

	for i, patch := range pending {
		p.emit(ProgressSample{Filename: patch.Filename, Index: i + 1, Total: len(pending), Status: "applying"})

		if err := p.ApplyOne(ctx, patch); err != nil {
			return err
		}
	}

	log.Info("all patches applied successfully")
	return nil
}

// ApplyOne runs the full per-patch state machine: download, verify
// checksum, dispatch by extension, save the GRF, mark applied, delete the
// temp file.
func (p *Patcher) ApplyOne(ctx context.Context, patch mirror.PatchInfo) *patcherr.Error {
	tempPath := filepath.Join(p.tempDir, patch.Filename)

	if err := p.mc.DownloadWithProgress(ctx, p.cfg.Mirrors, patch.Filename, tempPath, func(downloaded, total uint64) {
		p.emit(ProgressSample{Filename: patch.Filename, BytesDownloaded: downloaded, BytesTotal: total, Status: "downloading"})
	}); err != nil {
		p.recordOutcome(patch.Filename, err)
		return err
	}

	if patch.Checksum != "" {
		ok, err := p.mc.VerifyChecksum(tempPath, patch.Checksum)
		if err != nil {
			p.recordOutcome(patch.Filename, err)
			return err
		}
		if !ok {
			err := patcherr.New(patcherr.PatchFailed, "checksum mismatch for %s", patch.Filename)
			p.recordOutcome(patch.Filename, err)
			return err
		}
	}

	if err := p.applyPatchFile(tempPath); err != nil {
		p.recordOutcome(patch.Filename, err)
		return err
	}

	if err := p.cache.MarkApplied(patch.Filename); err != nil {
		p.recordOutcome(patch.Filename, err)
		return err
	}

	if rmErr := os.Remove(tempPath); rmErr != nil {
		log.WithFields(logrus.Fields{"path": tempPath, "err": rmErr}).Warn("failed to delete temp patch file")
	}

	p.recordOutcome(patch.Filename, nil)
	return nil
}

func (p *Patcher) recordOutcome(filename string, err *patcherr.Error) {
	message := "applied"
	if err != nil {
		message = err.Error()
	}
	audit.Record(p.cfg.AuditSink, audit.NewEvent(filename, err == nil, message))
}

// ApplyManual applies an already-downloaded patch file directly, bypassing
// the mirror/checksum/cache steps other than dispatch and GRF save. It is
// rejected outright when AllowManualPatch is false.
func (p *Patcher) ApplyManual(path string) *patcherr.Error {
	if !p.cfg.AllowManualPatch {
		return patcherr.New(patcherr.PatchFailed, "manual patching is disabled")
	}
	log.WithFields(logrus.Fields{"path": path}).Info("applying manual patch")
	err := p.applyPatchFile(path)
	p.recordOutcome(filepath.Base(path), err)
	return err
}

// ResetCache forgets every applied patch, so the next ListPending/ApplyAll
// treats all patches as pending again.
func (p *Patcher) ResetCache() *patcherr.Error {
	return p.cache.Reset()
}

func (p *Patcher) grfPath() (string, *patcherr.Error) {
	baseDir, err := resolveBaseDir(p.cfg.GameDirectory)
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, p.cfg.TargetGRF), nil
}

func (p *Patcher) openOrCreateGRF() (*grf.Archive, *patcherr.Error) {
	path, err := p.grfPath()
	if err != nil {
		return nil, err
	}

	if _, statErr := os.Stat(path); statErr == nil {
		log.WithFields(logrus.Fields{"path": path}).Info("opening existing grf")
		return grf.Open(path)
	}

	log.WithFields(logrus.Fields{"path": path}).Info("grf not found, creating new")
	return grf.CreateNew(path)
}

func (p *Patcher) applyPatchFile(path string) *patcherr.Error {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	log.WithFields(logrus.Fields{"path": path, "type": ext}).Info("applying patch")

	switch ext {
	case "beam":
		return p.applyBeam(path)
	case "thor":
		return p.applyThor(path)
	case "rgz":
		return p.applyRgz(path)
	case "gpf":
		return p.applyGpf(path)
	default:
		log.WithFields(logrus.Fields{"type": ext}).Warn("unknown patch format")
		return patcherr.New(patcherr.PatchFailed, "unknown patch format: %s", ext)
	}
}

func (p *Patcher) applyBeam(path string) *patcherr.Error {
	archive, err := beam.Open(path)
	if err != nil {
		return err
	}

	for _, filename := range archive.ListFiles() {
		if !archive.VerifyFile(filename) {
			return patcherr.New(patcherr.PatchFailed, "MD5 verification failed for: %s", filename)
		}
	}

	target, err := p.openOrCreateGRF()
	if err != nil {
		return err
	}

	for _, filename := range archive.ListFiles() {
		data, derr := archive.ExtractFile(filename)
		if derr != nil {
			return derr
		}
		entry, ok := archive.GetEntry(filename)
		if !ok {
			return patcherr.New(patcherr.PatchFailed, "entry not found: %s", filename)
		}

		grfName := entry.TargetPath()
		log.WithFields(logrus.Fields{"from": filename, "to": grfName, "size": len(data)}).Info("patching file")
		if perr := target.PatchFile(grfName, data); perr != nil {
			return perr
		}
	}

	return target.Save()
}

func (p *Patcher) applyThor(path string) *patcherr.Error {
	archive, err := thor.Open(path)
	if err != nil {
		return err
	}

	target, err := p.openOrCreateGRF()
	if err != nil {
		return err
	}

	for _, entry := range archive.Entries() {
		switch entry.Kind {
		case thor.Add:
			log.WithFields(logrus.Fields{"filename": entry.Filename}).Info("adding/updating file")
			if perr := target.PatchFile(entry.Filename, entry.Data); perr != nil {
				return perr
			}
		case thor.Remove:
			log.WithFields(logrus.Fields{"filename": entry.Filename}).Info("removing file")
			target.RemoveFile(entry.Filename)
		}
	}

	return target.Save()
}

func (p *Patcher) applyRgz(path string) *patcherr.Error {
	archive, err := rgz.Open(path)
	if err != nil {
		return err
	}

	target, err := p.openOrCreateGRF()
	if err != nil {
		return err
	}

	for _, e := range archive.Entries() {
		switch v := e.(type) {
		case rgz.FileEntry:
			log.WithFields(logrus.Fields{"name": v.Name}).Info("adding file")
			if perr := target.PatchFile(v.Name, v.Data); perr != nil {
				return perr
			}
		case rgz.DirectoryEntry:
			log.WithFields(logrus.Fields{"name": v.Name}).Debug("creating directory")
		}
	}

	return target.Save()
}

func (p *Patcher) applyGpf(path string) *patcherr.Error {
	archive, err := gpf.Open(path)
	if err != nil {
		return err
	}

	target, err := p.openOrCreateGRF()
	if err != nil {
		return err
	}

	for _, filename := range archive.ListFiles() {
		data, derr := archive.ExtractFile(filename)
		if derr != nil {
			return derr
		}
		log.WithFields(logrus.Fields{"filename": filename}).Info("patching file")
		if perr := target.PatchFile(filename, data); perr != nil {
			return perr
		}
	}

	return target.Save()
}
