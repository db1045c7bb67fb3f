package laserodom

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/concurrency"
	"github.com/wave-robotics/laserodom/correspondence"
	"github.com/wave-robotics/laserodom/feature"
	"github.com/wave-robotics/laserodom/optimize"
	"github.com/wave-robotics/laserodom/rangesensor"
	"github.com/wave-robotics/laserodom/spatialmath"
	"github.com/wave-robotics/laserodom/trajectory"
)

// OutputFunc is invoked on the publisher goroutine once per published sweep: the map-frame
// sweep-end pose, the body twist at sweep end, and the timestamp of the previous sweep end.
type OutputFunc func(pose spatialmath.Pose, twist *mat.VecDense, prevSweepEnd time.Time)

// matchedPair records one feature query point and the map points it corresponded to, captured
// during the most recent optimizer pass for output_correspondences.
type matchedPair struct {
	Query   [3]float64
	Matches [][3]float64
}

// Engine is the continuous-time LiDAR odometry engine: it owns the per-ring ingest buffers, the
// trajectory, the per-feature-kind correspondence manager, and the optimizer problem, and
// publishes one pose/twist estimate per completed, successfully optimized sweep.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	logger *zap.SugaredLogger

	rings      []*ingestRing
	extractor  *feature.Extractor
	rangeModel *rangesensor.Model

	traj    *trajectory.Trajectory
	corrMgr *correspondence.Manager
	problem *optimize.Problem

	lastTick     uint32
	haveLastTick bool
	wrapCount    uint32
	sweepBatch   uint64
	initialized  bool
	prevSweepEnd time.Time

	lastCorrespondences map[string][]matchedPair

	outputCallback OutputFunc

	pubMu       sync.Mutex
	pubCond     *sync.Cond
	freshOutput bool
	pendingPose  spatialmath.Pose
	pendingTwist *mat.VecDense
	pendingPrev  time.Time
	publisher    *concurrency.Worker

	trajFile *trajectoryWriter
}

// NewEngine builds an Engine from a validated configuration. The returned Engine immediately
// starts its publisher goroutine; call Stop when done.
func NewEngine(cfg Config, logger *zap.SugaredLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	defs := make([]feature.Definition, len(cfg.Features))
	featureNames := make([]string, len(cfg.Features))
	for i, f := range cfg.Features {
		defs[i] = feature.Definition{Name: f.Name, Criteria: f.Criteria, NLimit: f.NLimit}
		featureNames[i] = f.Name
	}
	extractorCfg := feature.Config{
		Scores:         cfg.Scores,
		Definitions:    defs,
		VarianceWindow: cfg.VarianceWindow,
		AngularBins:    cfg.AngularBins,
		KeyRadius:      cfg.KeyRadius,
		EigenThreads:   cfg.EigenThreads,
		Validity: feature.ValidityParams{
			OcclusionTol:  cfg.OcclusionTol,
			OcclusionTol2: cfg.OcclusionTol2,
			ParallelTol:   cfg.ParallelTol,
		},
	}
	extractor, err := feature.NewExtractor(extractorCfg, cfg.NRing)
	if err != nil {
		return nil, errors.Wrap(err, "configuring feature extractor")
	}

	qcData := make([]float64, 36)
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			qcData[i*6+j] = cfg.Qc[i][j]
		}
	}
	qc := mat.NewSymDense(6, qcData)

	traj, err := trajectory.New(cfg.NumTrajectoryStates, cfg.ScanPeriod, qc)
	if err != nil {
		return nil, errors.Wrap(err, "building trajectory")
	}

	corrMgr, err := correspondence.NewManager(featureNames, cfg.TTL, cfg.LocalMapRange)
	if err != nil {
		return nil, errors.Wrap(err, "building correspondence manager")
	}

	elevations := cfg.Elevations
	if len(elevations) == 0 {
		elevations = make([]float64, cfg.NRing)
	}
	rangeModel, err := rangesensor.NewModel(cfg.RangeSigma, cfg.AzimuthSigma, cfg.ElevationSigma, elevations)
	if err != nil {
		return nil, errors.Wrap(err, "building range sensor model")
	}

	rings := make([]*ingestRing, cfg.NRing)
	for i := range rings {
		rings[i] = newIngestRing(cfg.MaxPoints)
	}

	optCfg := toOptimizeConfig(cfg)
	if err := optCfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid solver configuration")
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		rings:      rings,
		extractor:  extractor,
		rangeModel: rangeModel,
		traj:       traj,
		corrMgr:    corrMgr,
		problem:    optimize.NewProblem(traj, optCfg),
	}
	e.pubCond = sync.NewCond(&e.pubMu)
	e.publisher = concurrency.NewWorker(e.publisherLoop)

	if cfg.OutputTrajectory {
		w, err := newTrajectoryWriter(cfg.OutputDir)
		if err != nil {
			return nil, errors.Wrap(err, "opening trajectory output file")
		}
		e.trajFile = w
	}

	return e, nil
}

func toOptimizeConfig(cfg Config) optimize.Config {
	return optimize.Config{
		OptIters:          cfg.OptIters,
		MaxInnerIters:     cfg.MaxInnerIters,
		FTol:              cfg.FTol,
		PTol:              cfg.PTol,
		DiffTol:           cfg.DiffTol,
		MinResiduals:      cfg.MinResiduals,
		MaxResidualVal:    cfg.MaxResidualVal,
		RobustParam:       cfg.RobustParam,
		LockFirst:         cfg.LockFirst,
		SolutionRemapping: cfg.SolutionRemapping,
		MinEigen:          cfg.MinEigen,
		SolverThreads:     cfg.SolverThreads,
	}
}

// Stop joins the publisher goroutine and releases any open output file. Safe to call once.
func (e *Engine) Stop() {
	if e.publisher != nil {
		e.publisher.Stop()
	}
	if e.trajFile != nil {
		e.trajFile.Close()
	}
}

// RegisterOutputCallback sets the function invoked on the publisher goroutine for each published
// sweep. Replaces any previously registered callback.
func (e *Engine) RegisterOutputCallback(fn OutputFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputCallback = fn
}

// UpdateParams replaces the engine's configuration after validating it. Ring buffers, the
// trajectory, and the correspondence manager are left as-is; only the parameters consulted
// per-sweep (solver tolerances, matching thresholds, density caps, ...) take effect immediately.
func (e *Engine) UpdateParams(p Config) error {
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	optCfg := toOptimizeConfig(p)
	if err := optCfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid solver configuration")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = p
	e.problem.Config = optCfg
	return nil
}

// GetParams returns the engine's current configuration.
func (e *Engine) GetParams() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Initialized reports whether the trajectory has accumulated enough local-map features to be
// optimized, per spec.md §4.H.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// AddPoints ingests one batch of range measurements acquired at the given tick, detects sweep
// boundaries (a tick decrease of more than 200 relative to the previous call), and runs a full
// sweep — feature extraction, local-map maintenance, and (once initialized) the optimizer — once
// n_window wraps have accumulated.
func (e *Engine) AddPoints(pts []rangesensor.PointXYZIR, tick uint32, stamp time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, pt := range pts {
		if int(pt.Ring) >= len(e.rings) {
			return errors.Errorf("point ring %d out of bounds for %d configured rings", pt.Ring, len(e.rings))
		}
		if err := e.rings[pt.Ring].append(pt.X, pt.Y, pt.Z, pt.Intensity, tick, e.cfg.MaxTicks, e.wrapCount); err != nil {
			return errors.Wrap(err, "ingesting point")
		}
	}

	wrapped := e.haveLastTick && int64(tick)-int64(e.lastTick) < -200
	e.lastTick = tick
	e.haveLastTick = true

	if wrapped {
		e.wrapCount++
		if e.wrapCount >= e.cfg.NWindow {
			e.wrapCount = 0
			e.runSweep(stamp)
		}
	}
	return nil
}

func (e *Engine) runSweep(stamp time.Time) {
	e.sweepBatch++
	ctx := context.Background()

	bufs := make([]*feature.RingBuffer, len(e.rings))
	for i, r := range e.rings {
		bufs[i] = r.buf
	}
	result, err := e.extractor.Extract(ctx, bufs)
	if err != nil {
		e.logger.Errorw("feature extraction failed, dropping sweep", "error", err, "sweep", e.sweepBatch)
		e.resetRings()
		return
	}

	e.promoteFeatures(result)
	if err := e.corrMgr.BuildTrees(); err != nil {
		e.logger.Errorw("local map rebuild failed", "error", err, "sweep", e.sweepBatch)
	}

	if !e.initialized && e.totalLocalMapEntries() >= e.cfg.MinFeatures {
		e.initialized = true
		e.logger.Infow("trajectory initialized", "sweep", e.sweepBatch)
	}

	var solved bool
	if e.initialized {
		if err := e.runOptimizer(ctx, result); err != nil {
			if errors.Is(err, optimize.ErrInsufficientConstraints) {
				e.initialized = false
				e.logger.Warnw("tracking lost: insufficient residuals, trajectory reset", "sweep", e.sweepBatch)
			} else {
				e.logger.Errorw("optimizer failed", "error", err, "sweep", e.sweepBatch)
			}
		} else {
			solved = true
		}
	}

	if e.trajFile != nil {
		if err := e.trajFile.AppendPose(e.traj.Knots[len(e.traj.Knots)-1].Pose); err != nil {
			e.logger.Errorw("writing trajectory output failed", "error", err)
		}
	}
	if e.cfg.OutputCorrespondences {
		if err := writeCorrespondenceFiles(e.cfg.OutputDir, e.lastCorrespondences); err != nil {
			e.logger.Errorw("writing correspondence output failed", "error", err)
		}
	}

	last := len(e.traj.Knots) - 1
	endPose := e.traj.Knots[last].Pose
	endTwist := cloneVecDense(e.traj.Knots[last].Twist)
	prevStamp := e.prevSweepEnd
	e.prevSweepEnd = stamp

	e.traj.Rollover()
	e.resetRings()

	if solved {
		e.publish(endPose, endTwist, prevStamp)
	}
}

func (e *Engine) resetRings() {
	for _, r := range e.rings {
		r.reset()
	}
}

func (e *Engine) totalLocalMapEntries() int {
	total := 0
	for _, f := range e.cfg.Features {
		total += e.corrMgr.Map(f.Name).Size()
	}
	return total
}

func (e *Engine) densityCap(kind ResidualKind) int {
	if kind == ResidualPointToPlane {
		return e.cfg.FlatMapDensity
	}
	return e.cfg.EdgeMapDensity
}

// promoteFeatures transforms every admitted feature sample to the map frame through the current
// operating point and promotes it into its feature kind's local map, capped at edge_map_density
// or flat_map_density new promotions per sweep.
func (e *Engine) promoteFeatures(result *feature.Result) {
	for fi, fcfg := range e.cfg.Features {
		lm := e.corrMgr.Map(fcfg.Name)
		cap := e.densityCap(fcfg.Residual)
		promoted := 0
		for ring, indices := range result.Indices[fi] {
			ir := e.rings[ring]
			for _, idx := range indices {
				if cap > 0 && promoted >= cap {
					break
				}
				k, kp1, tau := e.traj.TransformIndices(ir.globalTick(idx, e.cfg.MaxTicks), e.cfg.MaxTicks, e.cfg.NWindow, e.cfg.ScanPeriod)
				mapPt := e.traj.TransformToMap(ir.point(idx), k, kp1, tau)
				lm.Promote(mapPt)
				promoted++
			}
		}
	}
}

func cloneVecDense(v *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(v.Len(), nil)
	out.CopyVec(v)
	return out
}
