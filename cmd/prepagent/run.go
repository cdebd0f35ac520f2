package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"interview-agent/internal/bootstrap"
	"interview-agent/internal/extract"
	"interview-agent/internal/gate"
	"interview-agent/internal/pipeline"
	"interview-agent/internal/progress"
)

type runOptions struct {
	resumePath string
	role       string
	mode       string
	outPath    string
	experience string
	style      string
	weeks      int
	interval   time.Duration
	quiet      bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for a resume and a target role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.resumePath, "resume", "r", "", "Resume file (pdf, docx, txt, md)")
	flags.StringVar(&opts.role, "role", "", "Target role, e.g. \"Backend Engineer\"")
	flags.StringVarP(&opts.mode, "mode", "m", string(pipeline.ModeStandard), "Research mode: quick or standard")
	flags.StringVarP(&opts.outPath, "out", "o", "", "Write the report to this file instead of stdout")
	flags.StringVar(&opts.experience, "experience", "", "Experience level: junior, mid or senior")
	flags.StringVar(&opts.style, "style", "", "Learning style: visual, practical or theoretical")
	flags.IntVar(&opts.weeks, "weeks", 0, "Weeks until the interview")
	flags.DurationVar(&opts.interval, "progress-interval", time.Second, "How often to print progress")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Do not print progress")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func runPipeline(cmd *cobra.Command, cctx *commandContext, opts runOptions) error {
	cfg, err := cctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}
	mode, err := pipeline.ParseMode(opts.mode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resume, err := readResume(ctx, opts.resumePath)
	if err != nil {
		return err
	}

	engine, err := bootstrap.BuildEngine(cfg, progress.New())
	if err != nil {
		return err
	}

	stderr := cmd.ErrOrStderr()
	done := make(chan struct{})
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		if opts.quiet {
			<-done
			return
		}
		printProgress(stderr, engine.Tracker, opts.interval, done)
	}()

	state, runErr := engine.Runner.Run(ctx, pipeline.Input{
		ResumeText: resume,
		TargetRole: opts.role,
		Mode:       mode,
		Profile: pipeline.Profile{
			ExperienceLevel:  opts.experience,
			LearningStyle:    opts.style,
			PreparationWeeks: opts.weeks,
		},
	})
	close(done)
	<-printerDone

	if !opts.quiet {
		fmt.Fprintln(stderr, gateStatsTable(engine.Gate.Stats()))
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(stderr, "postings=%d reports=%d revisions=%d\n",
		len(state.JobPostings), len(state.InterviewReports), state.RevisionCount)
	if opts.outPath == "" {
		_, err := io.WriteString(cmd.OutOrStdout(), state.FinalReport+"\n")
		return err
	}
	if err := os.WriteFile(opts.outPath, []byte(state.FinalReport+"\n"), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(stderr, "report written to %s\n", opts.outPath)
	return nil
}

func readResume(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}
	text, err := extract.ExtractTextFromBytes(ctx, data, "", path)
	if err != nil {
		return "", fmt.Errorf("read resume %s: %w", path, err)
	}
	return text, nil
}

// printProgress prints a line whenever the snapshot changes until done closes.
func printProgress(w io.Writer, tracker *progress.Tracker, interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ""
	emit := func() {
		line := progressLine(tracker.Snapshot())
		if line != last {
			fmt.Fprintln(w, line)
			last = line
		}
	}
	for {
		select {
		case <-done:
			emit()
			return
		case <-ticker.C:
			emit()
		}
	}
}

func progressLine(s progress.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%3.0f%%] %s", s.Percent, s.StageLabel)
	if s.TotalUnits > 0 {
		fmt.Fprintf(&b, " (%d/%d, ok=%d failed=%d)", s.CompletedUnits, s.TotalUnits, s.SuccessCount, s.FailureCount)
	}
	if s.CurrentItem != "" {
		fmt.Fprintf(&b, " %s", s.CurrentItem)
	}
	if s.Stage != progress.StageComplete && s.Stage != progress.StageError {
		fmt.Fprintf(&b, " eta %s", s.RemainingText)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, " error: %s", s.Error)
	}
	return b.String()
}

func gateStatsTable(s gate.Stats) string {
	rows := [][]string{
		{"calls", strconv.FormatUint(s.TotalCalls, 10)},
		{"succeeded", strconv.FormatUint(s.SuccessfulCalls, 10)},
		{"overloaded", strconv.FormatUint(s.OverloadedCalls, 10)},
		{"retries", strconv.FormatUint(s.Retries, 10)},
		{"failed", strconv.FormatUint(s.FailedCalls, 10)},
		{"success rate", fmt.Sprintf("%.1f%%", s.SuccessRate()*100)},
		{"limit", fmt.Sprintf("%d/%d", s.Limit, s.BaseLimit)},
		{"peak in flight", strconv.Itoa(s.PeakInFlight)},
	}
	return renderTable([]string{"Gate", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
