// Command freefield runs one free-field paradigm for one subject.
//
//	freefield -paradigm su -subject 07 -plane v -sex f -cohort p -experimenter mk
//
// With -example the processors, buttons and cameras are simulated and the
// session is stored under subject 99.
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
	"slices"
	"syscall"
	"time"

	"github.com/teslashibe/go-freefield/internal/config"
	"github.com/teslashibe/go-freefield/internal/log"
	"github.com/teslashibe/go-freefield/pkg/experiment"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/storage"
	"github.com/teslashibe/go-freefield/pkg/web"
)

type options struct {
	paradigm     string
	subject      string
	plane        speakers.Plane
	sex          string
	cohort       string
	experimenter string
	example      bool
	configPath   string
	dashboard    string
	skipCalib    bool
	seed         uint64
	blocks       int
}

func main() {
	paradigm := flag.String("paradigm", "", "Paradigm: la (localization accuracy), su (spatial unmasking), nm (numerosity judgement)")
	subject := flag.String("subject", "", "Subject id")
	plane := flag.String("plane", "v", "Speaker plane: v or h")
	sex := flag.String("sex", "", "Subject sex: m or f")
	cohort := flag.String("cohort", "p", "Cohort: p (pilot) or t (test)")
	experimenter := flag.String("experimenter", os.Getenv("USER"), "Experimenter name")
	example := flag.Bool("example", false, "Simulate all devices and store under subject 99")
	cfgPath := flag.String("config", "", "Lab file (overrides "+config.EnvConfig+")")
	dashboard := flag.String("dashboard", "", "Dashboard listen address, e.g. :8080 (disabled when empty)")
	skipCalib := flag.Bool("skip-calibration", false, "Run without head-pose calibration")
	seed := flag.Uint64("seed", 0, "Random seed (0 = time based)")
	blocks := flag.Int("blocks", 1, "Number of blocks, each stored as its own session")
	level := flag.String("log-level", config.Getenv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	log.Init(*level)
	logger := log.Component("freefield")

	p, err := speakers.ParsePlane(*plane)
	if err != nil {
		fatal(logger, err)
	}
	opts := options{
		paradigm:     *paradigm,
		subject:      *subject,
		plane:        p,
		sex:          *sex,
		cohort:       *cohort,
		experimenter: *experimenter,
		example:      *example,
		configPath:   config.ConfigPath(*cfgPath),
		dashboard:    *dashboard,
		skipCalib:    *skipCalib,
		seed:         *seed,
		blocks:       *blocks,
	}
	if err := opts.validate(); err != nil {
		flag.Usage()
		fatal(logger, err)
	}

	lab, err := config.LoadLab(opts.configPath)
	if err != nil {
		fatal(logger, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, lab, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("session aborted")
			os.Exit(130)
		}
		fatal(logger, err)
	}
}

func (o *options) validate() error {
	var errs []error
	if !slices.Contains(experiment.Names(), o.paradigm) {
		errs = append(errs, fmt.Errorf("-paradigm must be one of %v", experiment.Names()))
	}
	if o.subject == "" && !o.example {
		errs = append(errs, errors.New("-subject is required"))
	}
	if o.sex != "" && o.sex != "m" && o.sex != "f" {
		errs = append(errs, errors.New("-sex must be m or f"))
	}
	if o.cohort != "p" && o.cohort != "t" {
		errs = append(errs, errors.New("-cohort must be p or t"))
	}
	if o.blocks < 1 {
		errs = append(errs, errors.New("-blocks must be at least 1"))
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, opts options, lab config.Lab, logger *slog.Logger) error {
	seed := opts.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed>>1|1))
	logger.Info("starting", "paradigm", opts.paradigm, "plane", opts.plane, "example", opts.example, "seed", seed)

	if err := os.MkdirAll(lab.DataRoot, 0o755); err != nil {
		return err
	}
	store, err := storage.Open(lab.DataPath(lab.Database), log.Component("storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	var closers []io.Closer
	defer func() {
		for _, c := range slices.Backward(closers) {
			if err := c.Close(); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}()

	var dev devices
	if opts.example {
		dev, err = simulatedDevices(lab, rng)
	} else {
		dev, err = labDevices(lab, logger)
	}
	if err != nil {
		return err
	}
	closers = append(closers, dev.closers...)

	paradigm, err := experiment.FromLab(opts.paradigm, lab, opts.example, rng)
	if err != nil {
		return err
	}
	cue, err := loadCue(lab, opts.example, logger)
	if err != nil {
		return err
	}

	deps := experiment.Deps{
		Rig:      dev.rig,
		Buttons:  dev.buttons,
		Tracker:  dev.tracker,
		Store:    store,
		Speakers: dev.speakers,
		Cue:      cue.Data,
		Gate:     experiment.GateFromLab(lab.Gate),
		Logger:   log.Component("experiment"),
		Rand:     rng,
	}
	if opts.dashboard != "" {
		srv := web.NewServer(store, log.Component("web"))
		srv.StartAsync(ctx, opts.dashboard)
		deps.Observer = srv.Observe
		logger.Info("dashboard enabled", "addr", opts.dashboard)
	}

	_, err = runBlocks(ctx, deps, experiment.Options{
		Subject: storage.Subject{
			Name:    experiment.SubjectName(opts.subject, opts.example),
			Group:   opts.paradigm,
			Sex:     opts.sex,
			Cohort:  opts.cohort,
			Species: "human",
		},
		Paradigm:     opts.paradigm,
		Experimenter: opts.experimenter,
		Plane:        opts.plane,
		Example:      opts.example,
	}, paradigm, opts.blocks, !opts.skipCalib, logger)
	return err
}

// runBlocks runs the paradigm blocks times. Every block is a new session
// and calibrates again when calibrate is set.
func runBlocks(ctx context.Context, deps experiment.Deps, sopts experiment.Options, p experiment.Paradigm,
	blocks int, calibrate bool, logger *slog.Logger) ([]*experiment.Session, error) {
	sessions := make([]*experiment.Session, 0, blocks)
	for block := 1; block <= blocks; block++ {
		logger.Info("block starting", "block", block, "of", blocks)
		session, err := experiment.NewSession(ctx, deps, sopts)
		if err != nil {
			return sessions, fmt.Errorf("block %d: %w", block, err)
		}
		sessions = append(sessions, session)
		if err := session.Run(ctx, p, calibrate); err != nil {
			return sessions, fmt.Errorf("block %d: %w", block, err)
		}
		logger.Info("block complete", "block", block, "of", blocks,
			"session", session.Record.ID, "trials", session.Trials())
	}
	return sessions, nil
}

func fatal(logger *slog.Logger, err error) {
	logger.Error("freefield failed", "error", err)
	os.Exit(1)
}
