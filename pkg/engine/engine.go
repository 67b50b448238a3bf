// Package engine runs one validation: it reconciles the master and test
// trees kind by kind, hands each pair to the validator of its kind, renders
// difference images for pixel mismatches and collects everything into a
// report. Pairs are compared one at a time in reconciliation order.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/sdejongh/scival/pkg/compare"
	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/output"
	"github.com/sdejongh/scival/pkg/raster"
	"github.com/sdejongh/scival/pkg/reconcile"
	"github.com/sdejongh/scival/pkg/render"
	"github.com/sdejongh/scival/pkg/storage"
)

// Engine orchestrates the validation run
type Engine struct {
	run      *models.Run
	logger   logging.Logger
	progress *output.Progress
	opener   raster.Opener

	master storage.Backend
	test   storage.Backend
}

// Option configures an Engine
type Option func(*Engine)

// WithProgress shows per-kind progress bars
func WithProgress(p *output.Progress) Option {
	return func(e *Engine) { e.progress = p }
}

// WithOpener replaces the raster opener
func WithOpener(o raster.Opener) Option {
	return func(e *Engine) { e.opener = o }
}

// WithBackends compares two existing backends instead of the run roots
func WithBackends(master, test storage.Backend) Option {
	return func(e *Engine) {
		e.master = master
		e.test = test
	}
}

// NewEngine creates a new validation engine
func NewEngine(run *models.Run, logger logging.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	e := &Engine{run: run, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.opener == nil {
		e.opener = raster.DefaultOpener()
	}
	return e
}

// Run executes the validation. A *models.ConfigError is returned, with no
// report, when the run cannot start. When ctx is cancelled between pairs
// the partial report is returned with status cancelled along with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*models.Report, error) {
	if e.run.ID == "" {
		e.run.ID = uuid.NewString()
	}
	log := e.logger.WithFields(logging.Fields{"run_id": e.run.ID})

	validators, renderer, err := e.prepare(ctx, log)
	if err != nil {
		log.Error(ctx, "Validation run aborted", err, logging.Fields{
			"master": e.run.MasterRoot,
			"test":   e.run.TestRoot,
		})
		return nil, err
	}

	log.Info(ctx, "Validation run started", logging.Fields{
		"master":      e.master.Root(),
		"test":        e.test.Root(),
		"mask_nodata": e.run.MaskNoData,
		"schema":      e.run.SchemaPath,
	})

	reporter := output.NewReporter(log, e.run)
	excludes := reconcile.NewPatterns(e.run.ExcludePatterns)

	for _, kind := range models.Kinds {
		exts := e.run.Extensions[kind]
		if len(exts) == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		res, err := reconcile.Reconcile(ctx, e.master, e.test, kind, exts, excludes)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			reporter.Warn(ctx, fmt.Sprintf("%s: reconciliation failed: %v", kind, err))
			continue
		}

		for _, msg := range res.Warnings {
			reporter.Warn(ctx, msg)
		}
		reporter.AddUnmatched(ctx, res.Unmatched()...)
		if res.Skipped {
			reporter.Skip(ctx, kind, res.SkipReason, res.Unpaired...)
			continue
		}

		log.Info(ctx, "Comparing files", logging.Fields{"kind": string(kind), "pairs": len(res.Pairs)})
		e.compareKind(ctx, log, validators[kind], renderer, reporter, res.Pairs)
	}

	if err := ctx.Err(); err != nil {
		log.Warn(ctx, "Validation run cancelled", nil)
		return reporter.Finish(ctx, true), err
	}
	return reporter.Finish(ctx, false), nil
}

func (e *Engine) compareKind(ctx context.Context, log logging.Logger, v compare.Validator, renderer *render.Renderer, reporter *output.Reporter, pairs []models.FilePair) {
	if len(pairs) == 0 {
		return
	}
	e.progress.Start(pairs[0].Kind, len(pairs))
	defer e.progress.Finish()

	for _, pair := range pairs {
		if ctx.Err() != nil {
			return
		}

		result := v.Validate(ctx, log, pair)
		if result.Kind == models.ResultPixelMismatch && renderer != nil && result.Diff != nil {
			path, err := renderer.Render(ctx, log, pair.MasterPath, pair.TestPath, result.Diff, diffName(pair))
			if err != nil {
				result = result.WithNotes("difference image not written: " + err.Error())
			} else {
				result.DiffImage = path
			}
		}

		reporter.Add(ctx, pair, result)
		e.progress.Increment()
	}
}

// prepare checks the run configuration and builds everything that must
// exist before the first comparison
func (e *Engine) prepare(ctx context.Context, log logging.Logger) (map[models.Kind]compare.Validator, *render.Renderer, error) {
	if err := e.run.Validate(); err != nil {
		return nil, nil, &models.ConfigError{Err: err}
	}

	if e.master == nil || e.test == nil {
		master, err := storage.NewLocal(e.run.MasterRoot)
		if err != nil {
			return nil, nil, &models.ConfigError{Err: fmt.Errorf("master directory: %w", err)}
		}
		test, err := storage.NewLocal(e.run.TestRoot)
		if err != nil {
			return nil, nil, &models.ConfigError{Err: fmt.Errorf("test directory: %w", err)}
		}
		e.master, e.test = master, test
	}

	xmlValidator := &compare.XMLValidator{}
	if e.run.SchemaPath != "" {
		if _, err := os.Stat(e.run.SchemaPath); err != nil {
			return nil, nil, &models.ConfigError{Err: fmt.Errorf("schema: %w", err)}
		}
		schema := compare.NewSchemaValidator(e.run.SchemaPath)
		if err := schema.Err(); err != nil {
			// every document of the run will be reported unreadable
			log.Error(ctx, "Schema could not be compiled", err, logging.Fields{"schema": e.run.SchemaPath})
		}
		xmlValidator.Schema = schema
	}

	var renderer *render.Renderer
	if e.run.RenderDiffs {
		r, err := render.NewRenderer(e.run.OutputDir)
		if err != nil {
			return nil, nil, &models.ConfigError{Err: err}
		}
		renderer = r
	}

	validators := map[models.Kind]compare.Validator{
		models.KindRaster: &compare.RasterComparator{MaskNoData: e.run.MaskNoData, Opener: e.opener},
		models.KindText:   compare.TextDiffer{},
		models.KindXML:    xmlValidator,
		models.KindImage:  compare.NewImageComparator(),
	}
	return validators, renderer, nil
}

// diffName is the basename the difference image is named after
func diffName(pair models.FilePair) string {
	return pair.Basename()
}
