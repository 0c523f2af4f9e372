package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kumarabd/console-brief/pkg/capture"
	"github.com/kumarabd/console-brief/pkg/ingest"
	"github.com/kumarabd/console-brief/pkg/pagecontext"
	"github.com/kumarabd/console-brief/pkg/provider"
	"github.com/kumarabd/console-brief/pkg/report"
)

// reportFlags are shared by report and brief.
type reportFlags struct {
	file       string
	pageURL    string
	format     string
	preset     string
	maxEntries int
	maxChars   int
	maxStack   int
	noOptimize bool
	capacity   int
}

func (f *reportFlags) register(cmd *cobra.Command, defaultPreset string) {
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "-", "capture file: JSON object, array or NDJSON (- for stdin)")
	flags.StringVar(&f.pageURL, "url", "", "page url shown in the report header")
	flags.StringVar(&f.format, "format", report.FormatAI, "output format: ai, xml or plain")
	flags.StringVar(&f.preset, "preset", defaultPreset, "level preset: errors, warnings or full")
	flags.IntVar(&f.maxEntries, "max-entries", 0, "most recent entries to include")
	flags.IntVar(&f.maxChars, "max-chars", report.DefaultMaxCharsPerEntry, "characters kept per entry when optimizing")
	flags.IntVar(&f.maxStack, "max-stack", report.DefaultMaxStackLines, "stack frames kept per entry when optimizing")
	flags.BoolVar(&f.noOptimize, "no-optimize", false, "keep messages as captured")
	flags.IntVar(&f.capacity, "capacity", capture.DefaultCapacity, "events kept from the capture, most recent first")
}

func (f *reportFlags) request(cmd *cobra.Command) report.Request {
	req := report.Request{Format: f.format, LevelPreset: f.preset}
	if f.noOptimize {
		optimize := false
		req.OptimizeForAI = &optimize
	}
	if cmd.Flags().Changed("max-entries") {
		req.MaxEntries = &f.maxEntries
	}
	if cmd.Flags().Changed("max-chars") {
		req.MaxCharsPerEntry = &f.maxChars
	}
	if cmd.Flags().Changed("max-stack") {
		req.MaxStackLines = &f.maxStack
	}
	return req
}

func (f *reportFlags) build(cmd *cobra.Command) (*report.Report, error) {
	buf, err := loadCapture(f.file, cmd.InOrStdin(), f.capacity)
	if err != nil {
		return nil, err
	}
	return report.NewBuilder(nil).Build(buf, f.pageURL, f.request(cmd).Options()), nil
}

func newReportCmd() *cobra.Command {
	var f reportFlags

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Compact a console capture into a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := f.build(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d entries, %d unique, ~%d tokens\n",
				rep.TotalCount, rep.TotalCaptured, rep.UniqueCount, rep.EstimatedTokens)
			return nil
		},
	}
	f.register(cmd, report.PresetFull)
	return cmd
}

func newContextCmd() *cobra.Command {
	var (
		file            string
		logs            string
		pageURL         string
		title           string
		strategy        string
		maxContextChars int
		asJSON          bool
	)

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Extract AI-ready context from an HTML snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := open(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			html, err := io.ReadAll(r)
			r.Close()
			if err != nil {
				return fmt.Errorf("read html: %w", err)
			}

			req := pagecontext.Request{
				HTML:     string(html),
				URL:      pageURL,
				Title:    title,
				Strategy: strategy,
			}
			if cmd.Flags().Changed("max-context-chars") {
				req.MaxContextChars = &maxContextChars
			}

			var console report.Source
			if logs != "" {
				buf, err := loadCapture(logs, cmd.InOrStdin(), capture.DefaultCapacity)
				if err != nil {
					return err
				}
				console = buf
			}

			result, err := pagecontext.NewExtractor(nil, nil, nil).Extract(req, pageURL, console)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(out, result.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d relevant lines, ~%d tokens\n",
				result.Strategy, result.RelevantCount, result.EstimatedTokens)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "-", "HTML snapshot (- for stdin)")
	flags.StringVar(&logs, "logs", "", "capture file whose errors and warnings feed console signals")
	flags.StringVar(&pageURL, "url", "", "page url used to resolve links")
	flags.StringVar(&title, "title", "", "page title when the snapshot lacks one")
	flags.StringVar(&strategy, "strategy", pagecontext.StrategyFullPage, "full-page or content-root")
	flags.IntVar(&maxContextChars, "max-context-chars", pagecontext.DefaultMaxContextChars, "full-text sample budget")
	flags.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func newBriefCmd() *cobra.Command {
	var (
		f     reportFlags
		style string
		model string
	)

	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Summarize a console capture with the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadEnv()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Model = model
			}

			router := provider.NewRouter(cfg.Provider,
				provider.NewChat(cfg.providerConfig(), nil, nil),
				provider.NewEcho(),
			)
			p, err := router.Get("")
			if err != nil {
				return err
			}
			if p.Name() == provider.NameChat && strings.TrimSpace(cfg.APIKey) == "" {
				return fmt.Errorf("%w: set BRIEF_API_KEY", provider.ErrMissingAPIKey)
			}

			rep, err := f.build(cmd)
			if err != nil {
				return err
			}
			if rep.TotalCount == 0 {
				return errors.New("no logs available for summarization")
			}

			req := provider.BriefRequest(ingest.NewRedactor(nil), rep.Text, provider.BriefContext{
				PageURL:       rep.PageURL,
				LevelPreset:   rep.LevelPreset,
				Format:        rep.Format,
				SelectedCount: rep.TotalCount,
				UniqueCount:   rep.UniqueCount,
				SummaryStyle:  style,
			})
			req.APIKey = strings.TrimSpace(cfg.APIKey)
			req.Model = cfg.Model

			result, err := p.Summarize(context.Background(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Summary)
			if result.Usage != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d prompt + %d completion tokens\n",
					result.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens)
			}
			return nil
		},
	}
	f.register(cmd, report.PresetErrors)
	cmd.Flags().StringVar(&style, "style", provider.StyleBrief, "summary style: brief, steps or rootcause")
	cmd.Flags().StringVar(&model, "model", "", "override BRIEF_MODEL")
	return cmd
}

func newRedactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redact",
		Short: "Mask credentials in text read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			out, rep := ingest.NewRedactor(nil).RedactMessage(string(in))
			if _, err := io.WriteString(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if rep.Applied {
				fmt.Fprintf(cmd.ErrOrStderr(), "redacted %d matches (%s)\n", rep.Count, strings.Join(rep.Rules, ", "))
			}
			return nil
		},
	}
}
