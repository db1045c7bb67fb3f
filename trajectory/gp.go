package trajectory

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// GPSegment is the constant-velocity white-noise-on-acceleration Gaussian-process prior between
// two adjacent knots. It produces the closed-form interpolation matrices Phi(tau)/Psi(tau) and
// the prior's linearized inverse covariance, following the standard GP motion-prior construction
// (Barfoot et al.) that the continuous-time trajectory model is built on.
type GPSegment struct {
	TK, TKp1 float64
	Qc       *mat.SymDense // 6x6 SPD power spectral density of the white-noise-on-acceleration prior
	InvQc    *mat.SymDense
}

// NewGPSegment builds a segment spanning [tk, tkp1] with continuous-time process noise Qc.
func NewGPSegment(tk, tkp1 float64, qc *mat.SymDense) (*GPSegment, error) {
	if tkp1 <= tk {
		return nil, errors.New("GP segment requires tkp1 > tk")
	}
	n, _ := qc.Dims()
	if n != 6 {
		return nil, errors.New("GP segment process noise must be 6x6")
	}
	var invQc mat.Dense
	if err := invQc.Inverse(qc); err != nil {
		return nil, errors.Wrap(err, "inverting GP process noise")
	}
	invQcSym := mat.NewSymDense(6, nil)
	for i := 0; i < 6; i++ {
		for j := i; j < 6; j++ {
			invQcSym.SetSym(i, j, invQc.At(i, j))
		}
	}
	return &GPSegment{TK: tk, TKp1: tkp1, Qc: qc, InvQc: invQcSym}, nil
}

// transition returns the 12x12 constant-velocity state transition matrix Phi(dt) = [[I, dt*I],[0, I]].
func transition(dt float64) *mat.Dense {
	phi := mat.NewDense(12, 12, nil)
	for i := 0; i < 12; i++ {
		phi.Set(i, i, 1)
	}
	for i := 0; i < 6; i++ {
		phi.Set(i, i+6, dt)
	}
	return phi
}

// processCovariance returns the 12x12 GP covariance Q(dt) for an interval of length dt, built as
// the Kronecker product of the 2x2 time-coefficient matrix [[dt^3/3, dt^2/2],[dt^2/2, dt]] with Qc.
func processCovariance(dt float64, qc mat.Matrix) *mat.Dense {
	coeffs := [2][2]float64{
		{dt * dt * dt / 3, dt * dt / 2},
		{dt * dt / 2, dt},
	}
	q := mat.NewDense(12, 12, nil)
	for bi := 0; bi < 2; bi++ {
		for bj := 0; bj < 2; bj++ {
			var block mat.Dense
			block.Scale(coeffs[bi][bj], qc)
			q.Slice(bi*6, bi*6+6, bj*6, bj*6+6).(*mat.Dense).Copy(&block)
		}
	}
	return q
}

// processCovarianceInverse returns Q(dt)^-1 directly via the closed-form Kronecker-product
// inverse: for Q = M (x) Qc with M the 2x2 coefficient matrix above, Q^-1 = M^-1 (x) Qc^-1.
func processCovarianceInverse(dt float64, invQc mat.Matrix) *mat.Dense {
	dt2, dt3 := dt*dt, dt*dt*dt
	mInv := [2][2]float64{
		{12 / dt3, -6 / dt2},
		{-6 / dt2, 4 / dt},
	}
	qInv := mat.NewDense(12, 12, nil)
	for bi := 0; bi < 2; bi++ {
		for bj := 0; bj < 2; bj++ {
			var block mat.Dense
			block.Scale(mInv[bi][bj], invQc)
			qInv.Slice(bi*6, bi*6+6, bj*6, bj*6+6).(*mat.Dense).Copy(&block)
		}
	}
	return qInv
}

// Interpolate returns the Phi(tau), Psi(tau) matrices for a query time tau in [TK, TKp1), such
// that a point at tick tau is transformed via
//
//	delta = Phi[0:6]*hatMultiplier + Psi[0:6]*candleMultiplier
//	p_MAP = (pose_k boxplus delta) * p_LIDAR
//
// matching spec §4.D. Both matrices depend only on (tau, TK, TKp1, Qc).
func (g *GPSegment) Interpolate(tau float64) (phi, psi *mat.Dense) {
	dtTau := tau - g.TK
	dtFull := g.TKp1 - g.TK
	dtRemain := g.TKp1 - tau

	qTau := processCovariance(dtTau, g.Qc)
	phiRemainT := transition(dtRemain).T()
	qFullInv := processCovarianceInverse(dtFull, g.InvQc)

	psi = mat.NewDense(12, 12, nil)
	var tmp mat.Dense
	tmp.Mul(qTau, phiRemainT)
	psi.Mul(&tmp, qFullInv)

	phiTau := transition(dtTau)
	phiFull := transition(dtFull)

	var psiPhiFull mat.Dense
	psiPhiFull.Mul(psi, phiFull)

	phi = mat.NewDense(12, 12, nil)
	phi.Sub(phiTau, &psiPhiFull)

	return phi, psi
}

// transitionInverse returns the closed-form inverse of transition(dt): [[I, -dt*I],[0, I]].
func transitionInverse(dt float64) *mat.Dense {
	phiInv := mat.NewDense(12, 12, nil)
	for i := 0; i < 12; i++ {
		phiInv.Set(i, i, 1)
	}
	for i := 0; i < 6; i++ {
		phiInv.Set(i, i+6, -dt)
	}
	return phiInv
}

// SqrtInformation returns the upper-triangular Cholesky factor U of this segment's prior
// inverse covariance, such that U^T*U equals PriorInverseCovariance(); U is the whitening matrix
// applied to the raw motion-prior residual.
func (g *GPSegment) SqrtInformation() (*mat.Dense, error) {
	sym := g.PriorInverseCovariance()
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, errors.New("GP segment prior inverse covariance is not positive definite")
	}
	var u mat.TriDense
	chol.UTo(&u)
	return mat.DenseCopyOf(&u), nil
}

// PriorInverseCovariance returns the 12x12 SPD inverse covariance of this segment's motion prior,
// used both for the prior residual at segment 0 and the constant-velocity residual between knots
// k and k+1.
func (g *GPSegment) PriorInverseCovariance() *mat.SymDense {
	dt := g.TKp1 - g.TK
	dense := processCovarianceInverse(dt, g.InvQc)
	sym := mat.NewSymDense(12, nil)
	for i := 0; i < 12; i++ {
		for j := i; j < 12; j++ {
			sym.SetSym(i, j, dense.At(i, j))
		}
	}
	return sym
}
