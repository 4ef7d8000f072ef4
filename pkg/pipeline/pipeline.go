// Package pipeline runs a bathymetry prediction from loaded inputs to a
// validated full-image result.
//
// A run moves through a fixed sequence of stages:
//  1. Reprojecting: the samples are moved into the raster's CRS
//  2. Filtering: samples outside the raster extent are dropped
//  3. Sampling: band values are read under every sample, the depth column is
//     normalized and the rows are split into train and test sets
//  4. Fitting: the configured regressor is trained
//  5. Predicting: every complete pixel of the raster is predicted
//  6. Validating: the test rows are predicted and scored
//
// An event is published before each stage and a final Done or Failed event
// ends the run. Sampling, fitting and prediction run inside a worker scope
// that is opened for that stage only.
package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"satbathy/internal/models"
	"satbathy/pkg/crs"
	"satbathy/pkg/preprocess"
	"satbathy/pkg/regression"
	"satbathy/pkg/validation"
	"satbathy/pkg/workers"
)

// Inputs are the loaded data and options of one run. The raster is only
// read; the sample table is copied before the first change.
type Inputs struct {
	Raster     *models.RasterImage
	Samples    *models.SampleTable
	Processing models.ProcessingConfig

	// Method holds the hyper-parameters of Processing.Method. When nil the
	// defaults of that method are used.
	Method regression.MethodConfig
}

// Params configures a Pipeline.
type Params struct {
	// Clock stamps the events, RealClock when nil
	Clock Clock
}

// Pipeline executes runs. It keeps no state between runs, but the caller
// must not start a second run on the same inputs while one is in flight.
type Pipeline struct {
	clock Clock
}

// NewPipeline creates a pipeline. params may be nil.
func NewPipeline(params *Params) *Pipeline {
	p := &Pipeline{clock: RealClock{}}
	if params != nil && params.Clock != nil {
		p.clock = params.Clock
	}
	return p
}

// Start runs the pipeline on a new goroutine and returns its events. The
// channel is buffered for every event of a run and closed after the
// terminal one, so the run never waits on the reader.
func (p *Pipeline) Start(ctx context.Context, in Inputs) <-chan Event {
	events := make(chan Event, maxEvents)
	go func() {
		defer close(events)
		_, _ = p.Run(ctx, in, func(e Event) { events <- e })
	}()
	return events
}

// Run executes the pipeline on the calling goroutine. obs, if not nil,
// receives every event. On failure the returned error matches one of the
// models sentinel errors and no result is produced.
func (p *Pipeline) Run(ctx context.Context, in Inputs, obs Observer) (*Result, error) {
	r := &run{
		id:    uuid.New(),
		clock: p.clock,
		obs:   obs,
	}
	res, err := r.execute(ctx, in)
	if err != nil {
		r.fail(err)
		return nil, err
	}
	return res, nil
}

// run carries the state of one execution from stage to stage.
type run struct {
	id       uuid.UUID
	clock    Clock
	obs      Observer
	timeline Timeline

	cfg    models.ProcessingConfig
	raster *models.RasterImage
	reg    regression.Regressor
	params []regression.Param
}

func (r *run) execute(ctx context.Context, in Inputs) (*Result, error) {
	if err := r.prepare(in); err != nil {
		return nil, err
	}
	res := &Result{
		RunID:        r.id,
		Width:        r.raster.Width,
		Height:       r.raster.Height,
		Transform:    r.raster.Transform,
		CRS:          r.raster.CRS,
		TotalSamples: in.Samples.Len(),
		Processing:   r.cfg,
		MethodParams: r.params,
	}

	// Step 1: bring the samples into the raster CRS
	reproject := !crs.Equal(in.Samples.CRS, r.raster.CRS)
	if reproject {
		r.emit(StageReprojecting, LabelReprojecting)
	} else {
		r.emit(StageReprojecting, LabelSkipReprojecting)
	}
	samples, reprojected, err := preprocess.Reproject(in.Samples, r.raster.CRS)
	if err != nil {
		return nil, err
	}
	res.Reprojected = reprojected

	// Step 2: drop the samples outside the raster
	if r.cfg.ExcludeOutOfBounds {
		r.emit(StageFiltering, LabelFiltering)
	} else {
		r.emit(StageFiltering, LabelSkipFiltering)
	}
	res.Samples = preprocess.FilterBounds(&samples, r.raster.Bounds(), r.cfg.ExcludeOutOfBounds)
	log.Debug().Str("run", r.id.String()).Int("kept", res.Samples.Len()).Int("total", samples.Len()).
		Msg("samples filtered")

	// Step 3: sample the raster, normalize depths and split
	r.emit(StageSampling, LabelSampling)
	var split models.SplitResult
	err = r.parallel(ctx, func(ctx context.Context) error {
		sampled, err := preprocess.SampleRaster(ctx, &res.Samples, r.raster, r.cfg.DepthLabel)
		if err != nil {
			return err
		}
		res.Dataset, res.Negated = preprocess.Normalize(&sampled, r.cfg)
		split, err = preprocess.Split(&res.Dataset, r.cfg.TrainFraction, r.cfg.Parallelism.RandomSeed)
		return err
	})
	if err != nil {
		return nil, err
	}
	res.Train = split.Train

	// Step 4: fit
	r.emit(StageFitting, LabelFitting)
	err = r.parallel(ctx, func(ctx context.Context) error {
		return r.reg.Fit(ctx, split.TrainFeatures, split.TrainTargets)
	})
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", r.cfg.Method.Key(), err)
	}

	// Step 5: predict the full image
	r.emit(StagePredictingFull, LabelPredicting)
	err = r.parallel(ctx, func(ctx context.Context) (err error) {
		res.Prediction, err = r.predictImage(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("predict image: %w", err)
	}

	// Step 6: validate on the held-out rows
	r.emit(StageValidating, LabelValidating)
	err = r.parallel(ctx, func(ctx context.Context) (err error) {
		res.Metrics, res.Test, err = validation.Validate(ctx, r.reg, &split)
		return err
	})
	if err != nil {
		return nil, err
	}

	done := r.timeline.add(StageDone, LabelDone, r.clock.Now())
	res.Timeline = Timeline{Marks: append([]Mark(nil), r.timeline.Marks...)}
	r.publish(Event{RunID: r.id, Time: done.Time, Stage: StageDone, Label: LabelDone, Result: res})
	log.Info().
		Str("run", r.id.String()).
		Str("method", r.cfg.Method.Key()).
		Float64("rmse", res.Metrics.RMSE).
		Float64("mae", res.Metrics.MAE).
		Float64("r2", res.Metrics.R2).
		Dur("elapsed", res.Timeline.Total()).
		Msg("prediction finished")
	return res, nil
}

// prepare checks everything that can be checked before the first event.
func (r *run) prepare(in Inputs) error {
	if in.Raster == nil {
		return fmt.Errorf("%w: no raster loaded", models.ErrMissingInput)
	}
	if in.Samples == nil {
		return fmt.Errorf("%w: no sample table loaded", models.ErrMissingInput)
	}
	if err := in.Raster.Validate(); err != nil {
		return err
	}

	r.cfg = in.Processing.Normalized()
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	if err := in.Samples.CheckDepth(r.cfg.DepthLabel); err != nil {
		return err
	}

	method := in.Method
	if method == nil {
		var err error
		if method, err = regression.DefaultMethodConfig(r.cfg.Method); err != nil {
			return err
		}
	}
	if method.Method() != r.cfg.Method {
		return fmt.Errorf("%w: %s parameters given for %s", models.ErrConfiguration,
			method.Method().Key(), r.cfg.Method.Key())
	}
	reg, err := regression.New(method)
	if err != nil {
		return err
	}
	r.raster = in.Raster
	r.reg = reg
	r.params = method.Describe()
	return nil
}

// parallel runs fn with a worker scope that is closed when fn returns.
func (r *run) parallel(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, release := workers.Scope(ctx, r.cfg.Parallelism)
	defer release()
	return fn(ctx)
}

// predictImage predicts every pixel whose bands are all present. The other
// pixels, and predictions outside an enabled depth window, are NaN.
func (r *run) predictImage(ctx context.Context) ([]float64, error) {
	img := r.raster
	n := img.PixelCount()
	var pixels []int
	var features [][]float64
	for i := 0; i < n; i++ {
		if img.PixelComplete(i) {
			pixels = append(pixels, i)
			features = append(features, img.Pixel(i))
		}
	}

	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if len(features) == 0 {
		return out, nil
	}
	pred, err := r.reg.Predict(ctx, features)
	if err != nil {
		return nil, err
	}
	for k, i := range pixels {
		v := pred[k]
		if r.cfg.LimitEnabled && (v < r.cfg.LimitLower || v > r.cfg.LimitUpper) {
			v = math.NaN()
		}
		out[i] = v
	}
	log.Debug().Str("run", r.id.String()).Int("pixels", len(pixels)).Int("total", n).Msg("image predicted")
	return out, nil
}

func (r *run) emit(stage Stage, label string) {
	m := r.timeline.add(stage, label, r.clock.Now())
	log.Debug().Str("run", r.id.String()).Stringer("stage", stage).Msg(label)
	r.publish(Event{RunID: r.id, Time: m.Time, Stage: stage, Label: label})
}

func (r *run) fail(err error) {
	f := &Failure{Reason: models.ReasonOf(err), Err: err}
	now := r.clock.Now()
	if n := len(r.timeline.Marks); n > 0 && !now.After(r.timeline.Marks[n-1].Time) {
		now = r.timeline.Marks[n-1].Time.Add(1)
	}
	log.Error().Err(err).Str("run", r.id.String()).Stringer("reason", f.Reason).Msg("prediction failed")
	r.publish(Event{RunID: r.id, Time: now, Stage: StageFailed, Label: LabelFailed, Failure: f})
}

func (r *run) publish(e Event) {
	if r.obs != nil {
		r.obs(e)
	}
}
