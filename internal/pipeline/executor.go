package pipeline

import (
	"context"
	"time"

	"azvm/internal/logging"
	"azvm/internal/provisioning"
	"azvm/internal/state"

	"go.uber.org/zap"
)

const maxLoggedStages = 5

// Execute runs every stage in order and returns the final run record. The
// record is returned even on failure; the error is a *StageError.
func (o *Orchestrator) Execute(ctx context.Context) (*state.RunRecord, error) {
	run := o.newRun()
	stages := o.Stages()
	logger := o.logger.With(zap.String("run_id", run.Record.ID))

	names := make([]string, 0, len(stages))
	for _, stage := range stages {
		names = append(names, stage.GetName())
	}
	logger.Info("starting provisioning run",
		zap.Int("stages_count", len(stages)),
		zap.Strings("stages", logging.TruncateSlice(names, maxLoggedStages)),
		zap.String("resource_group", o.settings.ResourceGroup))
	o.save(ctx, run.Record)

	err := o.executeStages(ctx, logger, run, stages)

	finished := o.now()
	run.Record.Finish(err, finished)
	o.save(ctx, run.Record)
	if o.metrics != nil {
		o.metrics.ObserveRun(string(run.Record.Status), finished)
	}

	if err != nil {
		logger.Error("provisioning run failed",
			zap.String("stage_name", FailedStage(err)),
			zap.String("class", provisioning.Classify(err)),
			zap.String("error", logging.Truncate(err.Error())))
		return run.Record, err
	}

	logger.Info("provisioning run completed successfully",
		zap.Duration("elapsed", finished.Sub(run.Record.StartedAt)))
	return run.Record, nil
}

func (o *Orchestrator) executeStages(ctx context.Context, logger *zap.Logger, run *Run, stages []Stage) error {
	for stageIndex, stage := range stages {
		name := stage.GetName()
		if !stage.Enabled() {
			logger.Debug("skipping disabled stage", zap.String("stage_name", name))
			run.Record.SkipStage(name, o.now())
			continue
		}

		logger.Info("executing pipeline stage",
			zap.Int("stage_index", stageIndex+1),
			zap.String("stage_name", name))

		started := o.now()
		run.Record.StartStage(name, started)
		o.save(ctx, run.Record)

		err := ctx.Err()
		if err == nil {
			err = stage.Execute(ctx, run)
		}

		finished := o.now()
		class := provisioning.Classify(err)
		run.Record.FinishStage(name, err, class, finished)
		o.save(ctx, run.Record)
		if o.metrics != nil {
			o.metrics.ObserveStage(name, finished.Sub(started), class, err != nil)
		}

		if err != nil {
			return &StageError{Stage: name, Err: err}
		}

		logger.Info("stage completed successfully",
			zap.String("stage_name", name),
			zap.Duration("elapsed", finished.Sub(started)))
	}
	return nil
}

// save persists the record. Store failures are logged and never fail the run.
func (o *Orchestrator) save(ctx context.Context, rec *state.RunRecord) {
	if o.store == nil {
		return
	}
	// A cancelled run still records how far it got.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.SaveRun(saveCtx, rec); err != nil {
		o.logger.Warn("failed to save run record", zap.String("run_id", rec.ID), zap.Error(err))
	}
}
