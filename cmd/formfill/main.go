package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// settings are the values shared by every subcommand after flags, env and
// the active profile have been merged.
type settings struct {
	baseURL      string
	profileName  string
	geminiAPIKey string
	geminiModel  string
	systemPrompt string
}

func main() {
	s := &settings{
		baseURL:     getenv("FORMFILL_BASE_URL", "http://localhost:8080"),
		profileName: getenv("FORMFILL_PROFILE", ""),
	}
	ui := newUI()

	root := &cobra.Command{
		Use:   "formfill",
		Short: "formfill CLI",
		Long:  "formfill CLI for starting form submission jobs and following their logs.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&s.baseURL, "base-url", s.baseURL, "Base URL of the formfill server")
	root.PersistentFlags().StringVar(&s.profileName, "profile", s.profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(s.profileName, cfg)
		prof := cfg.Profiles[active]

		if !cmd.Flags().Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("FORMFILL_BASE_URL")); v != "" {
				s.baseURL = v
			} else if prof.BaseURL != "" {
				s.baseURL = prof.BaseURL
			}
		}
		s.geminiAPIKey = firstNonEmpty(os.Getenv("FORMFILL_GEMINI_API_KEY"), prof.GeminiAPIKey)
		s.geminiModel = prof.GeminiModel
		s.systemPrompt = prof.SystemPrompt
		if s.profileName == "" {
			s.profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(s, ui))
	root.AddCommand(submitCmd(s, ui))
	root.AddCommand(watchCmd(s, ui))
	root.AddCommand(logsCmd(s, ui))
	root.AddCommand(statusCmd(s, ui))
	root.AddCommand(healthCmd(s, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func helpTemplate(ui *ui) string {
	title := ui.title("formfill")
	return fmt.Sprintf(`%s - CLI for formfill

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  formfill init
  formfill submit --form-url https://docs.google.com/forms/d/<id>/edit --count 5
  formfill watch <job-id>
  formfill logs <job-id>

`, title, configPath())
}
