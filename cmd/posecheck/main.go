// Command posecheck reads the head pose repeatedly and reports how stable
// it is. Use it to check camera placement and marker visibility before a
// session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-freefield/internal/config"
	"github.com/teslashibe/go-freefield/internal/log"
	"github.com/teslashibe/go-freefield/pkg/headpose"
	"github.com/teslashibe/go-freefield/pkg/tracking"
)

func main() {
	n := flag.Int("n", 10, "Number of pose readings")
	interval := flag.Duration("interval", time.Second, "Time between readings")
	cfgPath := flag.String("config", "", "Lab file (overrides "+config.EnvConfig+")")
	simulate := flag.Bool("simulate", false, "Use a simulated head instead of the cameras")
	level := flag.String("log-level", config.Getenv("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	log.Init(*level)
	logger := log.Component("posecheck")

	lab, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracker, closers, err := openTracker(lab, *simulate)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if err != nil {
		logger.Error("open cameras", "error", err)
		os.Exit(1)
	}

	s, err := check(ctx, tracker, *n, *interval, os.Stdout, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("pose check failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(s)
	if s.Valid == 0 {
		os.Exit(2)
	}
}

// Summary describes a run of pose readings.
type Summary struct {
	Readings int
	Valid    int
	MeanAz   float64
	MeanEl   float64
	StdAz    float64
	StdEl    float64
}

func (s Summary) String() string {
	if s.Valid == 0 {
		return fmt.Sprintf("%d readings, no valid pose: check markers and cameras", s.Readings)
	}
	return fmt.Sprintf("%d/%d valid  azimuth %.2f ± %.2f  elevation %.2f ± %.2f",
		s.Valid, s.Readings, s.MeanAz, s.StdAz, s.MeanEl, s.StdEl)
}

// check takes n readings interval apart and prints each one to w.
func check(ctx context.Context, t headpose.Tracker, n int, interval time.Duration, w io.Writer, logger *slog.Logger) (Summary, error) {
	var az, el []float64
	sum := Summary{}
	for i := range n {
		if i > 0 {
			select {
			case <-ctx.Done():
				return summarize(sum, az, el), ctx.Err()
			case <-time.After(interval):
			}
		}
		sum.Readings++
		p, err := t.Pose(ctx)
		if errors.Is(err, headpose.ErrNoPose) {
			logger.Warn("no pose", "reading", i+1, "error", err)
			fmt.Fprintf(w, "%3d  no pose\n", i+1)
			continue
		}
		if err != nil {
			return summarize(sum, az, el), err
		}
		az = append(az, p.Azimuth)
		el = append(el, p.Elevation)
		fmt.Fprintf(w, "%3d  azimuth %7.2f  elevation %7.2f\n", i+1, p.Azimuth, p.Elevation)
	}
	return summarize(sum, az, el), nil
}

func summarize(s Summary, az, el []float64) Summary {
	s.Valid = len(az)
	if s.Valid == 0 {
		return s
	}
	s.MeanAz, s.StdAz = stat.MeanStdDev(az, nil)
	s.MeanEl, s.StdEl = stat.MeanStdDev(el, nil)
	if s.Valid == 1 {
		s.StdAz, s.StdEl = 0, 0
	}
	return s
}

// jitterHead is a simulated head with small random motion.
type jitterHead struct {
	*headpose.SimulatedHead
	rng *rand.Rand
}

func (j jitterHead) Pose(ctx context.Context) (headpose.Pose, error) {
	j.Look(headpose.Pose{Azimuth: j.rng.NormFloat64(), Elevation: j.rng.NormFloat64()})
	return j.SimulatedHead.Pose(ctx)
}

func openTracker(lab config.Lab, simulate bool) (headpose.Tracker, []io.Closer, error) {
	if simulate {
		return jitterHead{headpose.NewSimulatedHead(headpose.Pose{}), rand.New(rand.NewPCG(1, 2))}, nil, nil
	}
	tr, err := tracking.Open(lab, log.Component("tracking"))
	if err != nil {
		return nil, nil, err
	}
	return tr, []io.Closer{tr}, nil
}
