// Package laserodom implements a continuous-time LiDAR odometry engine: per-tick point ingest,
// sweep-boundary feature extraction, correspondence search against a per-feature-kind local map,
// and a robustified nonlinear least-squares trajectory solve, publishing one estimated pose/twist
// per completed sweep through a lossy, non-blocking callback.
package laserodom

import (
	"github.com/pkg/errors"

	"github.com/wave-robotics/laserodom/feature"
)

// ResidualKind selects which cost function a feature kind ultimately feeds: SE3PointToLineGP or
// SE3PointToPlaneGP.
type ResidualKind int

// Recognized residual kinds.
const (
	ResidualPointToLine ResidualKind = iota
	ResidualPointToPlane
)

// FeatureKindConfig describes one configured feature kind: how candidates are scored and
// filtered (shared with the feature package's own Definition), its cardinality bound, and which
// residual it feeds once promoted to the local map.
type FeatureKindConfig struct {
	Name     string              `json:"name"`
	Criteria []feature.Criterion `json:"criteria"`
	NLimit   int                 `json:"n_limit"`
	Residual ResidualKind        `json:"residual"`
}

// Config holds every tunable of spec.md §6's configuration schema.
type Config struct {
	// Geometry/timing.
	NRing      int     `json:"n_ring"`
	MaxTicks   uint32  `json:"max_ticks"`
	ScanPeriod float64 `json:"scan_period"`
	NWindow    uint32  `json:"n_window"`
	MaxPoints  int     `json:"max_points"`

	// GP prior.
	NumTrajectoryStates int         `json:"num_trajectory_states"`
	Qc                  [6][6]float64 `json:"qc"`
	MotionPrior         bool        `json:"motion_prior"`
	LockFirst           bool        `json:"lock_first"`
	SolutionRemapping   bool        `json:"solution_remapping"`
	MinEigen            float64     `json:"min_eigen"`

	// Feature extraction.
	Scores         []feature.ScoreSpec `json:"scores"`
	Features       []FeatureKindConfig `json:"features"`
	VarianceWindow int                 `json:"variance_window"`
	AngularBins    int                 `json:"angular_bins"`
	KeyRadius      int                 `json:"key_radius"`
	OcclusionTol   float32             `json:"occlusion_tol"`
	OcclusionTol2  float32             `json:"occlusion_tol_2"`
	ParallelTol    float32             `json:"parallel_tol"`

	// Map / matching.
	TTL                   int32   `json:"ttl"`
	LocalMapRange         float64 `json:"local_map_range"`
	MaxCorrespondenceDist float64 `json:"max_correspondence_dist"`
	AzimuthTol            float64 `json:"azimuth_tol"`
	MaxExtrapolation      float64 `json:"max_extrapolation"`
	NoExtrapolation       bool    `json:"no_extrapolation"`
	EdgeMapDensity        int     `json:"edge_map_density"`
	FlatMapDensity        int     `json:"flat_map_density"`
	TreatLinesAsPlanes    bool    `json:"treat_lines_as_planes"`

	// Solver.
	OptIters          int     `json:"opt_iters"`
	MaxInnerIters     int     `json:"max_inner_iters"`
	FTol              float64 `json:"f_tol"`
	PTol              float64 `json:"p_tol"`
	DiffTol           float64 `json:"diff_tol"`
	MinResiduals      int     `json:"min_residuals"`
	MinFeatures       int     `json:"min_features"`
	MaxResidualVal    float64 `json:"max_residual_val"`
	RobustParam       float64 `json:"robust_param"`
	UseWeighting      bool    `json:"use_weighting"`
	SolverThreads     int     `json:"solver_threads"`
	EigenThreads      int     `json:"eigen_threads"`

	// Range-sensor noise model.
	RangeSigma     float64   `json:"range_sigma"`
	AzimuthSigma   float64   `json:"azimuth_sigma"`
	ElevationSigma float64   `json:"elevation_sigma"`
	Elevations     []float64 `json:"elevations"`

	// I/O.
	Visualize             bool   `json:"visualize"`
	OutputTrajectory      bool   `json:"output_trajectory"`
	OutputCorrespondences bool   `json:"output_correspondences"`
	PlotStuff             bool   `json:"plot_stuff"`
	OutputDir             string `json:"output_dir"`
}

// Validate performs the fatal configuration checks of spec.md §7, following the Validate() error
// convention used throughout this module's config-shaped types.
func (c Config) Validate() error {
	if c.NumTrajectoryStates < 2 {
		return errors.New("num_trajectory_states must be at least 2")
	}
	if c.NRing <= 0 {
		return errors.New("n_ring must be positive")
	}
	if len(c.Elevations) != 0 && len(c.Elevations) != c.NRing {
		return errors.Errorf("ring-count mismatch: n_ring=%d but %d elevations configured", c.NRing, len(c.Elevations))
	}
	if c.MaxTicks == 0 {
		return errors.New("max_ticks must be positive")
	}
	if c.ScanPeriod <= 0 {
		return errors.New("scan_period must be positive")
	}
	if c.NWindow == 0 {
		return errors.New("n_window must be positive")
	}
	if c.MaxPoints <= 0 {
		return errors.New("max_points must be positive")
	}
	if len(c.Features) == 0 {
		return errors.New("at least one feature kind must be configured")
	}
	names := make(map[string]bool, len(c.Features))
	for _, f := range c.Features {
		if f.Name == "" {
			return errors.New("every feature kind requires a name")
		}
		if names[f.Name] {
			return errors.Errorf("duplicate feature kind name %q", f.Name)
		}
		names[f.Name] = true
		if f.NLimit <= 0 {
			return errors.Errorf("feature %q: n_limit must be positive", f.Name)
		}
		if len(f.Criteria) == 0 {
			return errors.Errorf("feature %q: at least one criterion is required", f.Name)
		}
	}
	if c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	if c.LocalMapRange <= 0 {
		return errors.New("local_map_range must be positive")
	}
	if c.OptIters <= 0 {
		return errors.New("opt_iters must be positive")
	}
	if c.MinFeatures <= 0 {
		return errors.New("min_features must be positive")
	}
	if c.SolverThreads <= 0 {
		return errors.New("solver_threads must be positive")
	}
	if c.EigenThreads <= 0 {
		return errors.New("eigen_threads must be positive")
	}
	if c.RangeSigma <= 0 || c.AzimuthSigma <= 0 || c.ElevationSigma <= 0 {
		return errors.New("range/azimuth/elevation sigma must be positive")
	}
	return nil
}
