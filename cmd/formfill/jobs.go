package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/osvaldoandrade/formfill/pkg/client"
	"github.com/osvaldoandrade/formfill/pkg/domain"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func submitCmd(s *settings, ui *ui) *cobra.Command {
	var (
		formURL      string
		count        int
		jobID        string
		model        string
		systemPrompt string
		askKey       bool
		callbackURL  string
		interval     time.Duration
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Start a job and follow its log",
		Example: "formfill submit --form-url https://docs.google.com/forms/d/<id>/edit --count 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.ValidateFormURL(formURL); err != nil {
				return err
			}
			key := s.geminiAPIKey
			if askKey {
				var err error
				if key, err = promptSecret("Gemini API key"); err != nil {
					return err
				}
			}
			req := domain.JobRequest{
				JobID:              strings.TrimSpace(jobID),
				FormURL:            strings.TrimSpace(formURL),
				SubmissionCount:    count,
				GeminiAPIKey:       key,
				GeminiModel:        firstNonEmpty(model, s.geminiModel),
				GeminiSystemPrompt: firstNonEmpty(systemPrompt, s.systemPrompt),
				CallbackURL:        strings.TrimSpace(callbackURL),
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			total := domain.ClampSubmissions(count, domain.MaxSubmissions)
			fmt.Printf("%s Submitting %d response(s) to %s\n", ui.info("[INFO]"), total, req.FormURL)
			if key != "" {
				fmt.Printf("%s Gemini answers enabled (%s)\n", ui.info("[INFO]"), emptyOr(req.GeminiModel, domain.DefaultGeminiModel))
			}
			f := newFollower(os.Stdout, ui, total)
			opts := client.WatchOptions{
				Interval:    interval,
				MaxDuration: timeout,
				OnUpdate:    f.update,
				OnError:     f.transient,
			}
			snap, err := client.New(s.baseURL).Submit(ctx, req, opts)
			f.finish()
			return reportOutcome(ui, snap, err)
		},
	}
	cmd.Flags().StringVar(&formURL, "form-url", "", "Editable form URL")
	cmd.Flags().IntVar(&count, "count", 1, "Number of responses (1-50)")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job id (generated when empty)")
	cmd.Flags().StringVar(&model, "gemini-model", "", "Gemini model")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "Gemini system prompt")
	cmd.Flags().BoolVar(&askKey, "gemini-key", false, "Prompt for a Gemini API key")
	cmd.Flags().StringVar(&callbackURL, "callback-url", "", "Completion callback URL")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up following after this long")
	_ = cmd.MarkFlagRequired("form-url")
	return cmd
}

func watchCmd(s *settings, ui *ui) *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			f := newFollower(os.Stdout, ui, 0)
			snap, err := client.New(s.baseURL).Watch(ctx, args[0], client.WatchOptions{
				Interval:    interval,
				MaxDuration: timeout,
				OnUpdate:    f.update,
				OnError:     f.transient,
			})
			f.finish()
			return reportOutcome(ui, snap, err)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Poll interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up following after this long")
	return cmd
}

func logsCmd(s *settings, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print a job's log buffer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching logs..."
			spin.Start()
			logs, err := client.New(s.baseURL).GetLogs(context.Background(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}
			if len(logs.Entries) == 0 {
				fmt.Printf("%s No log lines for %s (unknown or expired)\n", ui.warn("[WARN]"), args[0])
				return nil
			}
			for _, e := range logs.Entries {
				fmt.Println(renderLine(ui, e))
			}
			return nil
		},
	}
}

func statusCmd(s *settings, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's state record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Fetching job..."
			spin.Start()
			st, err := client.New(s.baseURL).GetJob(context.Background(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}
			b, _ := json.MarshalIndent(st, "", "  ")
			fmt.Println(string(b))
			return nil
		},
	}
}

func healthCmd(s *settings, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Checking " + s.baseURL + "..."
			spin.Start()
			err := client.New(s.baseURL).Health(context.Background())
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s is up\n", ui.ok("[OK]"), s.baseURL)
			return nil
		},
	}
}

// follower prints log lines as they appear and drives a progress bar from
// the submitted count.
type follower struct {
	out     io.Writer
	ui      *ui
	printed int
	bar     *progressbar.ProgressBar
}

func newFollower(out io.Writer, ui *ui, total int) *follower {
	f := &follower{out: out, ui: ui}
	if total > 0 {
		f.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Responses"),
			progressbar.OptionSetWidth(18),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	return f
}

func (f *follower) update(snap client.Snapshot) {
	// An expired buffer comes back shorter; start over.
	if len(snap.Logs) < f.printed {
		f.printed = 0
	}
	for _, l := range snap.Logs[f.printed:] {
		fmt.Fprintln(f.out, renderLine(f.ui, l.LogEntry))
	}
	f.printed = len(snap.Logs)
	if f.bar != nil {
		_ = f.bar.Set(submittedCount(snap))
	}
}

func (f *follower) transient(err error) {
	fmt.Fprintf(f.out, "%s %v (retrying)\n", f.ui.warn("[WARN]"), err)
}

func (f *follower) finish() {
	if f.bar != nil {
		_ = f.bar.Finish()
	}
}

func submittedCount(snap client.Snapshot) int {
	if snap.Status != nil {
		return snap.Status.Submitted
	}
	n := 0
	for _, l := range snap.Logs {
		if strings.HasPrefix(l.Message, "Response ") && strings.HasSuffix(l.Message, " submitted") {
			n++
		}
	}
	return n
}

func renderLine(ui *ui, e domain.LogEntry) string {
	msg := e.Message
	switch domain.Classify(msg) {
	case domain.LogError:
		msg = ui.err(msg)
	case domain.LogWarning:
		msg = ui.warn(msg)
	}
	return ui.dim(e.Time) + " " + msg
}

func reportOutcome(ui *ui, snap client.Snapshot, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Printf("%s Stopped following %s; the job keeps running on the server\n", ui.warn("[WARN]"), snap.JobID)
		return nil
	case errors.Is(err, client.ErrWatchTimeout):
		return fmt.Errorf("job %s: %w", snap.JobID, err)
	case err != nil:
		return err
	}
	switch snap.State {
	case client.StateFinished:
		fmt.Printf("%s Job %s finished\n", ui.ok("[OK]"), snap.JobID)
		return nil
	case client.StateError:
		return fmt.Errorf("job %s failed", snap.JobID)
	default:
		return fmt.Errorf("job %s ended in state %s", snap.JobID, snap.State)
	}
}
