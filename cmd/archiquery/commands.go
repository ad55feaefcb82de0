package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
	"github.com/Khogao/archi-query-master-sub000/internal/extract"
	usageuc "github.com/Khogao/archi-query-master-sub000/internal/usecase/usage"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newIngestCommand(opts *rootOptions) *cobra.Command {
	var folderID string

	cmd := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Extract, chunk, embed and index documents into a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			files, err := collectFiles(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no supported documents found in %s", strings.Join(args, ", "))
			}

			a, err := newApp(ctx, opts.env, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			bar := progressbar.NewOptions(len(files),
				progressbar.OptionSetDescription(color.BlueString("Ingesting")),
				progressbar.OptionShowCount(),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)

			var failed, chunks int
			out := cmd.OutOrStdout()
			for _, path := range files {
				res, err := a.ingest.IngestFile(ctx, path, folderID)
				_ = bar.Add(1)
				if err != nil {
					failed++
					a.logger.Error("Ingest failed", zap.String("path", path), zap.Error(err))
					fmt.Fprintf(out, "%s %s: %v\n", color.RedString("✗"), path, err)
					continue
				}
				chunks += res.Chunks
				fmt.Fprintf(out, "%s %s (%s, %d chunks)\n",
					color.GreenString("✓"), res.DocumentName, res.DocumentID, res.Chunks)
			}

			fmt.Fprintf(out, "%d/%d documents indexed, %d chunks\n", len(files)-failed, len(files), chunks)
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "folder the documents belong to")
	_ = cmd.MarkFlagRequired("folder")
	return cmd
}

// collectFiles expands directories into the supported files below them.
// Explicit file arguments are kept even when unsupported so the error is reported.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.Supported(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, err)
		}
	}
	return files, nil
}

type queryFlags struct {
	folders   []string
	provider  string
	topK      int
	threshold float64
	stream    bool
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			a, err := newApp(ctx, opts.env, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			q := domain.Query{
				Text:      strings.Join(args, " "),
				FolderIDs: f.folders,
				TopK:      f.topK,
				Provider:  f.provider,
				Stream:    f.stream,
			}
			if cmd.Flags().Changed("threshold") {
				q.SimilarityThreshold = &f.threshold
			}

			out := cmd.OutOrStdout()
			var resp domain.Response
			if f.stream {
				resp = a.rag.QueryStream(ctx, q, func(c domain.StreamChunk) {
					fmt.Fprint(out, c.Content)
				})
				fmt.Fprintln(out)
			} else {
				resp = a.rag.Query(ctx, q)
				if resp.Error == "" {
					fmt.Fprintln(out, resp.Answer)
				}
			}

			if resp.Error != "" {
				return errors.New(resp.Error)
			}
			printSources(out, resp)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&f.folders, "folder", nil, "restrict retrieval to these folders (repeatable)")
	cmd.Flags().StringVarP(&f.provider, "provider", "p", "", "LLM provider to ask (default: current)")
	cmd.Flags().IntVarP(&f.topK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum cosine similarity of retrieved chunks")
	cmd.Flags().BoolVarP(&f.stream, "stream", "s", false, "print the answer as it is generated")
	return cmd
}

func printSources(w io.Writer, resp domain.Response) {
	dim := color.New(color.Faint).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	if len(resp.Sources) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, bold("Sources:"))
		for _, s := range resp.Sources {
			fmt.Fprintf(w, "  [%d] %s %s\n", s.Index, s.DocumentName, dim(fmt.Sprintf("(%.1f%%)", s.Similarity*100)))
		}
	}
	meta := fmt.Sprintf("%s/%s, %d ms", resp.Provider, resp.Model, resp.ProcessingTimeMs)
	if resp.Usage != nil {
		meta += fmt.Sprintf(", %d tokens", resp.Usage.TotalTokens)
	}
	fmt.Fprintln(w, dim(meta))
}

func newProvidersCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Health-check the configured LLM providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := commandContext(cmd)

			a, err := newApp(ctx, opts.env, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			green := color.New(color.FgGreen, color.Bold).SprintFunc()
			red := color.New(color.FgRed, color.Bold).SprintFunc()
			out := cmd.OutOrStdout()
			current := a.providers.CurrentName()

			for _, st := range a.providers.GetAvailableProviders(ctx) {
				mark := " "
				if st.Provider == current {
					mark = "*"
				}
				state := green("up")
				if !st.Available {
					state = red("down")
				}
				line := fmt.Sprintf("%s %-10s %-28s %s %4d ms", mark, st.Provider, st.Model, state, st.LatencyMs)
				if st.Error != "" {
					line += "  " + st.Error
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	var folder bool

	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Remove a document (or with --folder, a whole folder) from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			a, err := newApp(ctx, opts.env, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			before := a.vectors.Count()
			if folder {
				err = a.ingest.DeleteFolder(ctx, args[0])
			} else {
				err = a.ingest.DeleteDocument(ctx, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed %d chunks\n",
				color.GreenString("✓"), before-a.vectors.Count())
			return nil
		},
	}
	cmd.Flags().BoolVar(&folder, "folder", false, "treat the argument as a folder id")
	return cmd
}

func newUsageCommand(opts *rootOptions) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show LLM token usage against the configured budgets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := usageuc.ParsePeriod(period)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			a, err := newApp(ctx, opts.env, opts.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			report := a.usage.GetReport(ctx, p)
			if len(report.Providers) == 0 {
				fmt.Fprintln(out, "no provider has a token budget")
				return nil
			}
			for _, u := range report.Providers {
				line := fmt.Sprintf("%-10s %d / %d tokens", u.Provider, u.TokensUsed, u.TokensLimit)
				if u.TokensLimit == 0 {
					line = fmt.Sprintf("%-10s %d tokens (unlimited)", u.Provider, u.TokensUsed)
				}
				if u.Exhausted {
					line += " " + color.RedString("exhausted")
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", string(usageuc.PeriodDay), "budget window: day or month")
	return cmd
}
