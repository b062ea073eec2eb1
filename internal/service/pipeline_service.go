package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"kalshidune/internal/config"
	"kalshidune/internal/dune"
	"kalshidune/internal/etl"
	"kalshidune/internal/etl/sources"
	"kalshidune/internal/kalshi"
	"kalshidune/internal/marker"
	"kalshidune/internal/mirror"
	"kalshidune/internal/schema"
	"kalshidune/internal/snapshot"
	"kalshidune/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Pipeline Service — collect and upload stages per resource
// ─────────────────────────────────────────────────────────────

// PipelineService runs the two pipeline stages for every market data
// resource: collect (exchange API → dated snapshot CSV) and upload
// (snapshot CSV → warehouse table, optionally copied to a mirror
// database). Resources fail independently; a stage counts as
// successful overall when at least one resource made it through.
type PipelineService struct {
	cfg     *config.Config
	log     *logrus.Logger
	dune    *dune.Client
	snaps   snapshot.Store
	markers marker.Store
	runs    *storage.RunStore
	mirror  mirror.Connector

	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewPipelineService wires the pipeline from config. The runs store is
// optional; pass nil to run without history.
func NewPipelineService(cfg *config.Config, log *logrus.Logger, runs *storage.RunStore) (*PipelineService, error) {
	kc := kalshi.New(kalshi.Options{
		BaseURL:    cfg.Kalshi.BaseURL,
		MaxPages:   cfg.Kalshi.MaxPages,
		Sleep:      cfg.Kalshi.Sleep,
		MaxRetries: cfg.Kalshi.MaxRetries,
		Logger:     log,
	})
	sources.SetListingFetcher(kc)

	s := &PipelineService{
		cfg: cfg,
		log: log,
		dune: dune.New(dune.Options{
			BaseURL:    cfg.Dune.BaseURL,
			APIKey:     cfg.Dune.APIKey,
			Namespace:  cfg.Dune.Namespace,
			MaxRetries: cfg.Dune.MaxRetries,
			Logger:     log,
		}),
		snaps:   snapshot.Store{Dir: cfg.DataDir},
		markers: marker.Store{Dir: cfg.MarkerDir},
		runs:    runs,
	}

	if cfg.Mirror.Enabled() {
		conn, err := mirror.Open(cfg.Mirror)
		if err != nil {
			return nil, fmt.Errorf("open mirror: %w", err)
		}
		s.mirror = conn
		log.Infof("mirror: %s enabled", cfg.Mirror.Driver)
	}

	return s, nil
}

// dates resolves the timestamps a stage stamps and keys on: the full
// collection timestamp, the dashed day stored in record fields, and
// the compact day used in file and marker names.
func (s *PipelineService) dates() (collectedAt, day, compact string) {
	now := time.Now().UTC()
	collectedAt = now.Format(time.RFC3339)
	day = now.Format("2006-01-02")
	if s.cfg.CollectionDate != "" {
		day = s.cfg.CollectionDate
	}
	compact = strings.ReplaceAll(day, "-", "")
	return collectedAt, day, compact
}

// ── Collect stage ──────────────────────────────────────────

// CollectResource pulls every open listing of one resource from the
// exchange and replaces the dated snapshot CSV.
func (s *PipelineService) CollectResource(ctx context.Context, resource string) (*etl.SyncResult, error) {
	key := "collect:" + resource
	if !s.runningJobs.TryLock(key) {
		return nil, fmt.Errorf("%s is already running", key)
	}
	defer s.runningJobs.Unlock(key)

	collectedAt, day, compact := s.dates()
	path := s.snaps.Path(resource, compact)
	s.log.Infof("collect: fetching %s into %s", resource, path)

	job := &etl.SyncJob{
		Name:        key,
		SourceType:  "kalshi",
		SourceCfg:   etl.SourceConfig{"resource": resource, "collectedAt": collectedAt, "date": day},
		TargetID:    path,
		SyncMode:    etl.SyncReplace,
		FailOnEmpty: true,
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	result, err := (&etl.Engine{Dest: &etl.CSVFileWriter{}}).RunSync(runCtx, job)
	s.recordRun("collect", resource, compact, "", start, result, err)
	if err != nil {
		s.log.WithError(err).Errorf("collect: %s failed", resource)
		return result, err
	}
	s.log.WithFields(logrus.Fields{"resource": resource, "rows": result.RowsWritten}).Info("collect: snapshot written")
	return result, nil
}

// CollectAll runs the collect stage for every resource. Failures are
// isolated: one resource failing does not stop the others.
func (s *PipelineService) CollectAll(ctx context.Context) map[string]*etl.SyncResult {
	results := make(map[string]*etl.SyncResult)
	for _, resource := range kalshi.Resources() {
		result, err := s.CollectResource(ctx, resource)
		if result == nil {
			result = &etl.SyncResult{Name: "collect:" + resource, Status: "error", Error: err.Error()}
		}
		results[resource] = result
	}
	return results
}

// ── Upload stage ───────────────────────────────────────────

// UploadResource pushes the configured date's snapshot of one resource
// into its warehouse table.
func (s *PipelineService) UploadResource(ctx context.Context, resource string) (*etl.SyncResult, error) {
	_, _, compact := s.dates()
	return s.uploadSnapshot(ctx, resource, compact)
}

// uploadSnapshot uploads the snapshot for one (resource, date) pair.
// The table is created first if missing; sync mode and dedup markers
// decide whether rows are actually inserted.
func (s *PipelineService) uploadSnapshot(ctx context.Context, resource, date string) (*etl.SyncResult, error) {
	key := "upload:" + resource
	if !s.runningJobs.TryLock(key) {
		return nil, fmt.Errorf("%s is already running", key)
	}
	defer s.runningJobs.Unlock(key)

	table, err := schema.ForResource(resource)
	if err != nil {
		return nil, err
	}

	mode := etl.SyncReplace
	if s.cfg.AppendMode {
		mode = etl.SyncAppend
	}

	path := s.snaps.Path(resource, date)
	if !s.snaps.Exists(resource, date) {
		runErr := fmt.Errorf("snapshot not found: %s", path)
		s.log.Warnf("upload: %v, skipping %s", runErr, resource)
		result := &etl.SyncResult{Name: key, Status: "error", Error: runErr.Error()}
		s.recordRun("upload", resource, date, string(mode), time.Now(), result, runErr)
		return result, runErr
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()

	start := time.Now()
	if _, err := s.dune.EnsureTable(runCtx, table); err != nil {
		result := &etl.SyncResult{Name: key, Status: "error", Error: err.Error()}
		s.recordRun("upload", resource, date, string(mode), start, result, err)
		return result, err
	}

	job := &etl.SyncJob{
		Name:       key,
		SourceType: "csv_file",
		SourceCfg:  etl.SourceConfig{"filePath": path},
		Transforms: []etl.Transformer{
			&etl.RenameTransform{Mapping: schema.Aliases()},
			&etl.ReorderTransform{Fields: table.ColumnNames(), Fill: ""},
			&etl.SanitizeTransform{},
		},
		TargetID:    table.Name,
		Schema:      table.ETLSchema(),
		SyncMode:    mode,
		FailOnEmpty: true,
	}

	result, runErr := (&etl.Engine{Dest: s.uploadDest(runCtx, table, date)}).RunSync(runCtx, job)
	s.recordRun("upload", resource, date, string(mode), start, result, runErr)
	if runErr != nil {
		s.log.WithError(runErr).Errorf("upload: %s failed", resource)
		return result, runErr
	}
	s.log.WithFields(logrus.Fields{
		"resource": resource,
		"table":    table.Name,
		"rows":     result.RowsWritten,
		"mode":     string(mode),
	}).Info("upload: done")
	return result, nil
}

// uploadDest builds the warehouse destination, wrapped with the mirror
// copy when a mirror database is configured.
func (s *PipelineService) uploadDest(ctx context.Context, table schema.Table, date string) etl.Destination {
	primary := &dune.TableWriter{Client: s.dune, Markers: s.markers, Date: date, Logger: s.log}
	if s.mirror == nil {
		return primary
	}
	if err := s.mirror.EnsureTable(ctx, table); err != nil {
		s.log.Warnf("mirror: ensure table %s failed: %v", table.Name, err)
		return primary
	}
	return &mirroredDest{primary: primary, mirror: &mirror.Writer{Conn: s.mirror}, log: s.log}
}

// UploadAll runs the upload stage for every resource, isolating failures.
func (s *PipelineService) UploadAll(ctx context.Context) map[string]*etl.SyncResult {
	results := make(map[string]*etl.SyncResult)
	for _, resource := range kalshi.Resources() {
		result, err := s.UploadResource(ctx, resource)
		if result == nil {
			result = &etl.SyncResult{Name: "upload:" + resource, Status: "error", Error: err.Error()}
		}
		results[resource] = result
	}
	return results
}

// ── Full pipeline ──────────────────────────────────────────

// Run executes collect for every resource, then upload for every
// resource. The upload results decide the overall outcome.
func (s *PipelineService) Run(ctx context.Context) map[string]*etl.SyncResult {
	collected := s.CollectAll(ctx)
	s.LogSummary("collect", collected)
	return s.UploadAll(ctx)
}

// LogSummary prints one line per resource for a finished stage.
func (s *PipelineService) LogSummary(stage string, results map[string]*etl.SyncResult) {
	for _, resource := range kalshi.Resources() {
		r, ok := results[resource]
		if !ok {
			continue
		}
		entry := s.log.WithFields(logrus.Fields{
			"stage":       stage,
			"resource":    resource,
			"rowsRead":    r.RowsRead,
			"rowsWritten": r.RowsWritten,
		})
		if r.Status == "success" {
			entry.Info("summary: ok")
		} else {
			entry.WithField("error", r.Error).Error("summary: failed")
		}
	}
}

// AnySucceeded reports whether at least one resource completed a stage.
// Process exit codes derive from this.
func AnySucceeded(results map[string]*etl.SyncResult) bool {
	for _, r := range results {
		if r != nil && r.Status == "success" {
			return true
		}
	}
	return false
}

func (s *PipelineService) recordRun(stage, resource, date, mode string, start time.Time, result *etl.SyncResult, runErr error) {
	if s.runs == nil {
		return
	}
	run := &storage.Run{
		Stage:       stage,
		Resource:    resource,
		Date:        date,
		Mode:        mode,
		Status:      result.Status,
		RowsRead:    result.RowsRead,
		RowsWritten: result.RowsWritten,
		StartedAt:   start,
		FinishedAt:  time.Now(),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if err := s.runs.CreateRun(run); err != nil {
		s.log.Warnf("run history: %v", err)
	}
}

// ── Daemon / Watch ─────────────────────────────────────────

// Daemon schedules the full pipeline with the configured cron
// expression and blocks until ctx is cancelled.
func (s *PipelineService) Daemon(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		s.log.Info("cron: running pipeline")
		results := s.Run(ctx)
		s.LogSummary("upload", results)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.cronSched = c
	s.log.Infof("cron: pipeline scheduled at %q", s.cfg.Schedule)

	<-ctx.Done()
	s.log.Info("cron: shutting down")
	waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.WaitRunning(waitCtx)
	s.Stop()
	return nil
}

// Watch uploads snapshots as they appear: a create or write of any
// file matching the snapshot naming scheme under the data directory
// triggers an upload of that resource and date, debounced per file.
func (s *PipelineService) Watch(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.cfg.DataDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.cfg.DataDir, err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	s.log.Infof("watch: waiting for snapshots in %s", s.cfg.DataDir)

	timers := make(map[string]*time.Timer)
	for {
		select {
		case <-watchCtx.Done():
			s.Stop()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			resource, date, ok := snapshot.Match(event.Name)
			if !ok {
				continue
			}
			if t, exists := timers[event.Name]; exists {
				t.Stop()
			}
			name, res, day := event.Name, resource, date
			timers[event.Name] = time.AfterFunc(500*time.Millisecond, func() {
				s.log.Infof("watch: snapshot changed %q, uploading %s", filepath.Base(name), res)
				if _, err := s.uploadSnapshot(watchCtx, res, day); err != nil {
					s.log.WithError(err).Errorf("watch: upload %s failed", res)
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Errorf("watch: %v", err)
		}
	}
}

// WaitRunning blocks until all running stages finish or ctx is
// cancelled. Used for graceful shutdown.
func (s *PipelineService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down the watcher and scheduler. Safe to call twice.
func (s *PipelineService) Stop() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

// Close releases long-lived resources on top of Stop.
func (s *PipelineService) Close() {
	s.Stop()
	if s.mirror != nil {
		s.mirror.Close()
		s.mirror = nil
	}
}

// mirroredDest writes to the warehouse first and copies whatever
// landed into the mirror. Mirror failures are logged, never fatal.
type mirroredDest struct {
	primary etl.Destination
	mirror  etl.Destination
	log     *logrus.Logger
}

func (d *mirroredDest) Write(ctx context.Context, targetID string, sch *etl.Schema, records []etl.Record, mode etl.SyncMode) (int, error) {
	n, err := d.primary.Write(ctx, targetID, sch, records, mode)
	if err != nil || n == 0 {
		return n, err
	}
	if _, merr := d.mirror.Write(ctx, targetID, sch, records, mode); merr != nil {
		d.log.Warnf("mirror: write %s failed: %v", targetID, merr)
	}
	return n, nil
}
