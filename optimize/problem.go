package optimize

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/concurrency"
	"github.com/wave-robotics/laserodom/residual"
	"github.com/wave-robotics/laserodom/trajectory"
)

// Block is one residual cost function bound to the pair of knots it depends on. Kp1 may equal K
// for a single-knot prior; its cost function then returns a zero Jacobian for the second slot.
// Robust distinguishes feature residuals, which are subject to the max_residual_val gate and
// bisquare downweighting in assembleNormalEquations, from motion priors, which spec §4.G step 1
// always enters at full weight.
type Block struct {
	Cost   residual.CostFunction
	K, Kp1 int
	Robust bool
}

// Problem is the set of residual blocks assembled for one solver pass over a trajectory: the
// inter-sweep start prior, the K-1 constant-velocity priors, and one block per matched feature
// correspondence (spec §4.G step 1, "Assemble problem").
type Problem struct {
	Traj   *trajectory.Trajectory
	Config Config
	Blocks []Block

	// LastEvaluationErrors accumulates one error per residual block that failed to evaluate
	// (e.g. a degenerate line correspondence) during the most recent assembleNormalEquations
	// call, combined with go.uber.org/multierr so a caller can log every failure from a single
	// value instead of just the last one.
	LastEvaluationErrors error
}

// NewProblem returns an empty problem bound to traj.
func NewProblem(traj *trajectory.Trajectory, cfg Config) *Problem {
	return &Problem{Traj: traj, Config: cfg}
}

// Reset clears every residual block, keeping the trajectory and config. Called once per sweep
// before the caller repopulates feature blocks via AddBlock.
func (p *Problem) Reset() {
	p.Blocks = p.Blocks[:0]
}

// AddBlock appends a feature-correspondence residual depending on knots k and kp1, subject to the
// max_residual_val gate and bisquare robust weighting during assembly.
func (p *Problem) AddBlock(cost residual.CostFunction, k, kp1 int) {
	p.addBlock(cost, k, kp1, true)
}

func (p *Problem) addBlock(cost residual.CostFunction, k, kp1 int, robust bool) {
	p.Blocks = append(p.Blocks, Block{Cost: cost, K: k, Kp1: kp1, Robust: robust})
}

// AddMotionPriors appends the start prior anchoring knot 0 to the previous sweep's
// extrapolation and the K-1 constant-velocity priors between every adjacent knot pair. These
// blocks always enter the normal equations at full weight: they are not feature correspondences,
// so the gating and robust downweighting applied to AddBlock's blocks do not apply to them.
func (p *Problem) AddMotionPriors() error {
	e0, d0 := p.Traj.StartResidual()
	sqrtInfo0, err := p.Traj.StartSqrtInformation()
	if err != nil {
		return errors.Wrap(err, "start prior whitening")
	}
	p.addBlock(&StartPrior{E0: e0, D0: d0, SqrtInfo: sqrtInfo0}, 0, 0, false)

	for k := 0; k < len(p.Traj.Segments); k++ {
		e, dK, dKp1 := p.Traj.PriorResidual(k)
		sqrtInfo, err := p.Traj.Segments[k].SqrtInformation()
		if err != nil {
			return errors.Wrapf(err, "segment %d prior whitening", k)
		}
		p.addBlock(&MotionPrior{E0: e, DK: dK, DKp1: dKp1, SqrtInfo: sqrtInfo}, k, k+1, false)
	}
	return nil
}

type blockEval struct {
	residual []float64
	jacs     [2]*mat.Dense
	weight   float64
	ok       bool
}

// evaluateBlocks linearizes every block at the given per-knot trial corrections, in parallel
// across solver_threads workers, joining before returning (spec §4.G's parallel linearization
// step).
func (p *Problem) evaluateBlocks(deltas []*mat.VecDense) []blockEval {
	evals := make([]blockEval, len(p.Blocks))
	concurrency.GroupWorkParallel(context.Background(), len(p.Blocks), p.Config.SolverThreads, nil,
		func(groupNum, groupSize, from, to int) (concurrency.MemberWorkFunc, func()) {
			return func(member, workNum int) {
				blk := p.Blocks[workNum]
				res, jacs, weight, ok := blk.Cost.Evaluate([]residual.Vec12{deltas[blk.K], deltas[blk.Kp1]})
				evals[workNum] = blockEval{residual: res, jacs: jacs, weight: weight, ok: ok}
			}, nil
		})
	return evals
}

// bisquareWeight is the Tukey bisquare robust weight for a residual of the given norm, zero once
// the norm reaches c (spec's robust_param).
func bisquareWeight(normRes, c float64) float64 {
	if c <= 0 {
		return 1
	}
	ratio := normRes / c
	if ratio >= 1 {
		return 0
	}
	t := 1 - ratio*ratio
	return t * t
}

// assembleNormalEquations stacks every accepted, bisquare-weighted residual row into a dense
// Jacobian over the full state (12 columns per knot) at the given trial corrections. A block
// whose residual norm exceeds max_residual_val*weight is rejected outright before robust
// weighting is even applied, matching the gating check in spec §4.G step 1.
func (p *Problem) assembleNormalEquations(deltas []*mat.VecDense) (j *mat.Dense, r *mat.VecDense, kept int, err error) {
	numKnots := len(p.Traj.Knots)
	cols := 12 * numKnots

	evals := p.evaluateBlocks(deltas)

	var evalErr error
	var jRows [][]float64
	var rVals []float64
	for bi, ev := range evals {
		if !ev.ok {
			evalErr = multierr.Append(evalErr, errors.Errorf("residual block %d failed to evaluate", bi))
			continue
		}
		blk := p.Blocks[bi]
		sqrtW := 1.0
		if blk.Robust {
			normRes := vecNorm(ev.residual)
			weight := ev.weight
			if weight <= 0 {
				weight = 1
			}
			if normRes > p.Config.MaxResidualVal*weight {
				continue
			}
			w := bisquareWeight(normRes, p.Config.RobustParam)
			if w <= 0 {
				continue
			}
			sqrtW = math.Sqrt(w)
		}

		rows, _ := ev.jacs[0].Dims()
		for i := 0; i < rows; i++ {
			row := make([]float64, cols)
			for c := 0; c < 12; c++ {
				row[blk.K*12+c] += ev.jacs[0].At(i, c) * sqrtW
				row[blk.Kp1*12+c] += ev.jacs[1].At(i, c) * sqrtW
			}
			jRows = append(jRows, row)
			rVals = append(rVals, ev.residual[i]*sqrtW)
		}
		kept++
	}

	p.LastEvaluationErrors = evalErr

	if len(jRows) == 0 {
		return nil, nil, 0, errors.New("no residuals survived gating")
	}

	j = mat.NewDense(len(jRows), cols, nil)
	for i, row := range jRows {
		j.SetRow(i, row)
	}
	r = mat.NewVecDense(len(rVals), rVals)
	return j, r, kept, nil
}

func vecNorm(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func vecDenseNorm(v mat.Vector) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		x := v.AtVec(i)
		sum += x * x
	}
	return math.Sqrt(sum)
}
