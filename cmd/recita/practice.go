package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/recita/internal/app"
	"github.com/MrWong99/recita/internal/config"
	"github.com/MrWong99/recita/internal/practice"
	"github.com/MrWong99/recita/pkg/audio/wavfile"
)

type practiceOptions struct {
	wavDir   string
	name     string
	submit   bool
	realtime bool
	retries  int
}

func newPracticeCmd(configPath *string) *cobra.Command {
	var opts practiceOptions
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run one headless session, replaying a WAV file per round",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPractice(cmd.Context(), cmd.OutOrStdout(), *configPath, opts)
		},
	}
	cmd.Flags().StringVar(&opts.wavDir, "wav-dir", "", "directory of WAV files, replayed in name order (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "learner name used for ranking submission")
	cmd.Flags().BoolVar(&opts.submit, "submit", false, "submit the average to the ranking service")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "replay audio at playback speed")
	cmd.Flags().IntVar(&opts.retries, "retries", 1, "scoring retries per round before giving up")
	_ = cmd.MarkFlagRequired("wav-dir")
	return cmd
}

func runPractice(parent context.Context, out io.Writer, configPath string, opts practiceOptions) error {
	if opts.submit && strings.TrimSpace(opts.name) == "" {
		return errors.New("--submit requires --name")
	}
	paths, err := wavFiles(opts.wavDir)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)
	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		closeAll(providers.Closers)
		return fmt.Errorf("build providers: %w", err)
	}
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		closeAll(providers.Closers)
		return fmt.Errorf("initialise application: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = application.Shutdown(shutdownCtx)
	}()

	device, err := wavfile.New(paths, wavfile.WithRealtime(opts.realtime))
	if err != nil {
		return err
	}

	// Failures are handled here rather than in Notify, which must not send
	// commands from the controller's goroutine.
	failures := make(chan practice.Event, 1)
	notify := func(e practice.Event) {
		printEvent(out, e)
		if e.Kind == practice.EventScoringFailed || e.Kind == practice.EventRecordingFailed {
			failures <- e
		}
	}

	sess, err := application.StartSession(ctx, app.StartRequest{
		Name:          opts.name,
		MicPermission: true,
		Notify:        notify,
	}, device)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	fmt.Fprintf(out, "session %s: %d recordings from %s\n", sess.Info.SessionID, len(paths), opts.wavDir)

	retries := opts.retries
	ctrl := sess.Controller
	for {
		select {
		case <-ctrl.Done():
			return finishPractice(ctx, out, application, sess, opts)
		case e := <-failures:
			switch {
			case e.Kind == practice.EventScoringFailed && retries > 0:
				retries--
				fmt.Fprintf(out, "  retrying scoring (%d left)\n", retries)
				if err := ctrl.RetryScoring(); err != nil {
					return err
				}
			default:
				_ = ctrl.Exit()
				<-ctrl.Done()
				return fmt.Errorf("round %d: %w", e.Round+1, e.Err)
			}
		}
	}
}

func finishPractice(ctx context.Context, out io.Writer, a *app.App, sess *app.Session, opts practiceOptions) error {
	res, ok := sess.Controller.Result()
	if !ok {
		return errors.New("session ended before all rounds were scored")
	}
	fmt.Fprintf(out, "\nper round: %v\naverage:   %.1f\ntier:      %s\n%s\n",
		res.PerRound, res.Average, res.Comment, res.Tier.Message())

	if !opts.submit {
		return nil
	}
	if err := a.SubmitResult(ctx, opts.name, res); err != nil {
		return fmt.Errorf("submit result: %w", err)
	}
	fmt.Fprintf(out, "submitted %.1f for %s\n", res.Average, strings.TrimSpace(opts.name))
	return nil
}

func printEvent(out io.Writer, e practice.Event) {
	switch e.Kind {
	case practice.EventRoundStarted:
		fmt.Fprintf(out, "round %d [level %s, %s]: %s\n",
			e.Round+1, e.Script.Level, e.Duration.Round(time.Millisecond), e.Script.Content)
	case practice.EventRoundScored:
		fmt.Fprintf(out, "  score %d (raw %.2f)\n", e.Display, e.Raw)
	case practice.EventRecordingFailed, practice.EventScoringFailed:
		fmt.Fprintf(out, "  %s: %v\n", e.Kind, e.Err)
	case practice.EventExited:
		fmt.Fprintln(out, "session exited")
	}
}

// wavFiles returns the .wav files in dir sorted by name.
func wavFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read wav dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .wav files in %s", dir)
	}
	slices.Sort(paths)
	return paths, nil
}
