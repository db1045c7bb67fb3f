package laserodom

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/spatialmath"
)

// publish hands the latest sweep's estimate to the publisher goroutine without blocking the
// ingest thread: a pending snapshot not yet drained by the time the next one arrives is silently
// overwritten, after logging the loss (spec §5's lossy, non-blocking output contract).
func (e *Engine) publish(pose spatialmath.Pose, twist *mat.VecDense, prevSweepEnd time.Time) {
	e.pubMu.Lock()
	if e.freshOutput {
		e.logger.Warnw("output publisher fell behind, previous sweep snapshot dropped", "sweep", e.sweepBatch)
	}
	e.pendingPose = pose
	e.pendingTwist = twist
	e.pendingPrev = prevSweepEnd
	e.freshOutput = true
	e.pubCond.Signal()
	e.pubMu.Unlock()
}

// publisherLoop drains pendingPose/pendingTwist as they arrive, invoking the registered output
// callback outside the engine's ingest lock so a slow callback cannot stall AddPoints. It exits
// once ctx is canceled, even mid-wait: a goroutine that only watches ctx.Done() wakes the
// sync.Cond so the wait loop can observe cancellation instead of blocking forever.
func (e *Engine) publisherLoop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		e.pubMu.Lock()
		close(done)
		e.pubCond.Broadcast()
		e.pubMu.Unlock()
	}()

	for {
		e.pubMu.Lock()
		for !e.freshOutput {
			select {
			case <-done:
				e.pubMu.Unlock()
				return
			default:
			}
			e.pubCond.Wait()
		}
		select {
		case <-done:
			e.pubMu.Unlock()
			return
		default:
		}

		pose, twist, prev := e.pendingPose, e.pendingTwist, e.pendingPrev
		e.freshOutput = false
		e.pubMu.Unlock()

		e.mu.Lock()
		cb := e.outputCallback
		e.mu.Unlock()
		if cb != nil {
			cb(pose, twist, prev)
		}
	}
}

const trajectoryFileSuffix = "laser_odom_traj.txt"

// trajectoryWriter appends one comma-separated line per sweep to a file named by the unix-nanos
// timestamp of its creation, each line the sweep-end pose as a row-major 3x4 matrix (rotation
// followed by translation per row) — the "12 pose-storage floats" of spec §6's output_trajectory.
type trajectoryWriter struct {
	f *os.File
}

func newTrajectoryWriter(dir string) (*trajectoryWriter, error) {
	name := fmt.Sprintf("%d%s", time.Now().UnixNano(), trajectoryFileSuffix)
	path := name
	if dir != "" {
		path = filepath.Join(dir, name)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &trajectoryWriter{f: f}, nil
}

func (w *trajectoryWriter) AppendPose(pose spatialmath.Pose) error {
	rot := spatialmath.RotationMatrix(pose.R)
	t := pose.Point()
	trans := [3]float64{t.X, t.Y, t.Z}

	line := ""
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			if line != "" {
				line += ","
			}
			line += fmt.Sprintf("%g", rot.At(row, col))
		}
		line += fmt.Sprintf(",%g", trans[row])
	}
	_, err := fmt.Fprintln(w.f, line)
	return err
}

func (w *trajectoryWriter) Close() error {
	return w.f.Close()
}

// writeCorrespondenceFiles writes one file per feature kind that matched at least one
// correspondence this sweep, each line a query point followed by the map points it matched
// against, all whitespace-separated (spec §6's output_correspondences).
func writeCorrespondenceFiles(dir string, byKind map[string][]matchedPair) error {
	for name, pairs := range byKind {
		fname := fmt.Sprintf("%d_%s_correspondences.txt", time.Now().UnixNano(), name)
		path := fname
		if dir != "" {
			path = filepath.Join(dir, fname)
		}
		if err := writeCorrespondenceFile(path, pairs); err != nil {
			return errors.Wrapf(err, "feature kind %q", name)
		}
	}
	return nil
}

func writeCorrespondenceFile(path string, pairs []matchedPair) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, p := range pairs {
		fmt.Fprintf(f, "%g %g %g", p.Query[0], p.Query[1], p.Query[2])
		for _, m := range p.Matches {
			fmt.Fprintf(f, " %g %g %g", m[0], m[1], m[2])
		}
		fmt.Fprintln(f)
	}
	return nil
}
