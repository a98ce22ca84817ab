package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/htql-dev/htql/internal/data"
	"github.com/htql-dev/htql/internal/engine"
	"github.com/htql-dev/htql/internal/include"
	"github.com/htql-dev/htql/internal/markup"
	"github.com/htql-dev/htql/internal/schema"
	"github.com/htql-dev/htql/internal/store"
	"github.com/htql-dev/htql/internal/tree"
	"github.com/htql-dev/htql/internal/value"
)

// RenderResult is the JSON-format output of htql render.
type RenderResult struct {
	HTML   string   `json:"html"`
	Errors []string `json:"errors,omitempty"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dataPath   string
		patchPaths []string
		includeDir string
		cachePath  string
		schemaPath string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render <template-file>",
		Short: "Render a template against a data context",
		Long: `Render an HTQL template file: directives expand, includes resolve, and
bindings evaluate against the data context. Patch files apply as
successive data updates before the final tree is printed.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, cmd, args[0], renderConfig{
				dataPath:   dataPath,
				patchPaths: patchPaths,
				includeDir: includeDir,
				cachePath:  cachePath,
				schemaPath: schemaPath,
				timeout:    timeout,
			})
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "JSON or YAML data context file")
	cmd.Flags().StringArrayVar(&patchPaths, "patch", nil, "data patch file applied after mount (repeatable, in order)")
	cmd.Flags().StringVar(&includeDir, "includes", "", "directory include sources resolve against (default: template's directory)")
	cmd.Flags().StringVar(&cachePath, "cache", "", "SQLite include cache database path")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "CUE schema the data context must satisfy")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "maximum time to wait for includes to settle")

	return cmd
}

type renderConfig struct {
	dataPath   string
	patchPaths []string
	includeDir string
	cachePath  string
	schemaPath string
	timeout    time.Duration
}

func runRender(opts *RootOptions, cmd *cobra.Command, templatePath string, cfg renderConfig) error {
	src, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	var initial value.Mapping
	if cfg.dataPath != "" {
		initial, err = LoadData(cfg.dataPath)
		if err != nil {
			return err
		}
	}
	if cfg.schemaPath != "" && initial != nil {
		if err := checkSchema(cfg.schemaPath, initial); err != nil {
			return err
		}
	}

	fetcher, cleanup, err := buildFetcher(templatePath, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var renderErrs []string
	arena := tree.NewArena()
	rt := engine.New(arena, data.NewStore(nil), markup.Parse,
		engine.WithFetcher(fetcher),
		engine.WithErrorHandler(func(err error) {
			renderErrs = append(renderErrs, err.Error())
		}),
	)

	root, err := markup.Parse(arena, string(src))
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	if err := rt.Mount(root, initial); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()
	if err := rt.Settle(ctx); err != nil {
		return fmt.Errorf("includes did not settle: %w", err)
	}

	for _, patchPath := range cfg.patchPaths {
		patch, err := LoadData(patchPath)
		if err != nil {
			return err
		}
		if err := rt.SetData(patch); err != nil {
			return err
		}
		if err := rt.Settle(ctx); err != nil {
			return fmt.Errorf("includes did not settle: %w", err)
		}
	}

	result := RenderResult{HTML: rt.HTML(), Errors: renderErrs}
	return writeRenderResult(cmd, opts, result)
}

// buildFetcher assembles the include fetcher: file-backed, rooted at the
// configured directory, optionally wrapped in the SQLite cache.
func buildFetcher(templatePath string, cfg renderConfig) (include.Fetcher, func(), error) {
	root := cfg.includeDir
	if root == "" {
		root = filepath.Dir(templatePath)
	}
	var fetcher include.Fetcher = include.FileFetcher{Root: root}
	cleanup := func() {}

	if cfg.cachePath != "" {
		cache, err := store.Open(cfg.cachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open include cache: %w", err)
		}
		fetcher = include.CachedFetcher{Source: fetcher, Cache: cache}
		cleanup = func() { cache.Close() }
	}
	return fetcher, cleanup, nil
}

func checkSchema(schemaPath string, m value.Mapping) error {
	src, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema: %w", err)
	}
	s, err := schema.Compile(string(src))
	if err != nil {
		return err
	}
	violations := s.Validate(m)
	if len(violations) == 0 {
		return nil
	}
	for _, v := range violations {
		fmt.Fprintln(os.Stderr, v.Error())
	}
	return fmt.Errorf("data context does not satisfy schema %s (%d violations)", schemaPath, len(violations))
}

func writeRenderResult(cmd *cobra.Command, opts *RootOptions, result RenderResult) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintln(out, result.HTML)
	for _, e := range result.Errors {
		fmt.Fprintln(cmd.ErrOrStderr(), "render error:", e)
	}
	return nil
}
