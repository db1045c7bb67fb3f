package laserodom

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/wave-robotics/laserodom/concurrency"
	"github.com/wave-robotics/laserodom/spatialmath"
)

func newObservedLogger(t *testing.T) (*zap.SugaredLogger, *observer.ObservedLogs) {
	logger := zaptest.NewLogger(t)
	observerCore, logs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger = logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, observerCore)
	}))
	return logger.Sugar(), logs
}

// TestPublisherDropsStaleSnapshotUnderBackpressure drives three published sweeps while the
// callback for the first is still running: the second is overwritten by the third before the
// publisher drains it, producing exactly one overwrite warning and a final callback invocation
// carrying the third sweep's pose, matching spec §8 scenario 6 ("publisher lossiness").
func TestPublisherDropsStaleSnapshotUnderBackpressure(t *testing.T) {
	logger, logs := newObservedLogger(t)
	e := &Engine{logger: logger}
	e.pubCond = sync.NewCond(&e.pubMu)
	e.publisher = concurrency.NewWorker(e.publisherLoop)
	defer e.publisher.Stop()

	var calls int32
	var lastX float64
	firstCallStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	done := make(chan struct{}, 8)

	e.outputCallback = func(pose spatialmath.Pose, twist *mat.VecDense, prev time.Time) {
		n := atomic.AddInt32(&calls, 1)
		lastX = pose.Point().X
		if n == 1 {
			close(firstCallStarted)
			<-releaseFirst
		}
		done <- struct{}{}
	}

	mkPose := func(x float64) spatialmath.Pose {
		p := spatialmath.NewZeroPose()
		p.T.X = x
		return p
	}

	e.publish(mkPose(1), mat.NewVecDense(6, nil), time.Time{})
	<-firstCallStarted

	e.publish(mkPose(2), mat.NewVecDense(6, nil), time.Time{})
	e.publish(mkPose(3), mat.NewVecDense(6, nil), time.Time{})

	close(releaseFirst)
	<-done
	<-done

	test.That(t, atomic.LoadInt32(&calls), test.ShouldEqual, int32(2))
	test.That(t, lastX, test.ShouldEqual, 3.0)

	warnings := logs.FilterMessageSnippet("dropped").Len()
	test.That(t, warnings, test.ShouldEqual, 1)
}

func TestTrajectoryWriterAppendsRowMajorPoseLine(t *testing.T) {
	dir := t.TempDir()
	w, err := newTrajectoryWriter(dir)
	test.That(t, err, test.ShouldBeNil)

	pose := spatialmath.NewZeroPose()
	pose.T.X, pose.T.Y, pose.T.Z = 1, 2, 3
	test.That(t, w.AppendPose(pose), test.ShouldBeNil)
	test.That(t, w.Close(), test.ShouldBeNil)

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)

	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	test.That(t, err, test.ShouldBeNil)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	test.That(t, scanner.Scan(), test.ShouldBeTrue)
	fields := strings.Split(scanner.Text(), ",")
	test.That(t, len(fields), test.ShouldEqual, 12)

	vals := make([]float64, 12)
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		test.That(t, err, test.ShouldBeNil)
		vals[i] = v
	}
	// identity rotation row-major, translation appended at the end of each row.
	test.That(t, vals[0], test.ShouldEqual, 1.0)
	test.That(t, vals[3], test.ShouldEqual, 1.0)
	test.That(t, vals[7], test.ShouldEqual, 2.0)
	test.That(t, vals[11], test.ShouldEqual, 3.0)
}

func TestWriteCorrespondenceFilesOneFilePerFeatureKind(t *testing.T) {
	dir := t.TempDir()
	pairs := map[string][]matchedPair{
		"edge": {
			{Query: [3]float64{1, 2, 3}, Matches: [][3]float64{{4, 5, 6}, {7, 8, 9}}},
		},
	}
	test.That(t, writeCorrespondenceFiles(dir, pairs), test.ShouldBeNil)

	entries, err := os.ReadDir(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, strings.Contains(entries[0].Name(), "edge"), test.ShouldBeTrue)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	test.That(t, err, test.ShouldBeNil)
	fields := strings.Fields(string(data))
	test.That(t, len(fields), test.ShouldEqual, 9)
}
