package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/htql-dev/htql/internal/expr"
	"github.com/htql-dev/htql/internal/markup"
	"github.com/htql-dev/htql/internal/schema"
	"github.com/htql-dev/htql/internal/tree"
)

// ExpressionIssue is one malformed expression found in a template.
type ExpressionIssue struct {
	Attribute string `json:"attribute"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

// ValidationResult holds template and data validation results.
type ValidationResult struct {
	Valid       bool                     `json:"valid"`
	Expressions []ExpressionIssue        `json:"expressions,omitempty"`
	Data        []schema.ValidationError `json:"data,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dataPath   string
		schemaPath string
	)

	cmd := &cobra.Command{
		Use:   "validate <template-file>",
		Short: "Check a template's expressions without rendering",
		Long: `Compile every directive and binding expression in a template and report
syntax errors. With --schema and --data, additionally validates the data
file against a CUE schema.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd, args[0], dataPath, schemaPath)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "JSON or YAML data context file to validate")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "CUE schema the data file must satisfy")

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command, templatePath, dataPath, schemaPath string) error {
	src, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}

	arena := tree.NewArena()
	root, err := markup.Parse(arena, string(src))
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	result := ValidationResult{
		Expressions: CheckExpressions(arena, root),
	}

	if schemaPath != "" && dataPath != "" {
		m, err := LoadData(dataPath)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema: %w", err)
		}
		s, err := schema.Compile(string(raw))
		if err != nil {
			return err
		}
		result.Data = s.Validate(m)
	}

	result.Valid = len(result.Expressions) == 0 && len(result.Data) == 0
	if err := writeValidationResult(cmd, opts, result); err != nil {
		return err
	}
	if !result.Valid {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// CheckExpressions compiles every expression a template declares and
// collects the syntax errors. Directive conditions, repeat clauses, and
// binding attributes are covered; everything else passes through.
func CheckExpressions(arena *tree.Arena, root tree.NodeID) []ExpressionIssue {
	var issues []ExpressionIssue
	check := func(attr, src string) {
		if _, err := expr.Compile(src); err != nil {
			issues = append(issues, ExpressionIssue{Attribute: attr, Source: src, Message: err.Error()})
		}
	}
	arena.Walk(root, func(_ tree.NodeID, n *tree.Node) {
		if n.Kind != tree.KindElement {
			return
		}
		attrs := make([]string, 0, len(n.Attrs))
		for attr := range n.Attrs {
			attrs = append(attrs, attr)
		}
		sort.Strings(attrs)
		for _, attr := range attrs {
			src := n.Attrs[attr]
			switch {
			case attr == "cond", attr == "data-bind", attr == "data-sync",
				strings.HasPrefix(attr, "data-bind-"):
				check(attr, src)
			case attr == "key" && n.Tag == "repeat":
				check(attr, src)
			case attr == "each" && n.Tag == "repeat":
				_, collSrc, ok := strings.Cut(src, " in ")
				if !ok {
					issues = append(issues, ExpressionIssue{
						Attribute: attr, Source: src,
						Message: `each must have the form "ident in expr"`,
					})
					continue
				}
				check(attr, strings.TrimSpace(collSrc))
			}
		}
	})
	return issues
}

func writeValidationResult(cmd *cobra.Command, opts *RootOptions, result ValidationResult) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if result.Valid {
		fmt.Fprintln(out, "valid")
		return nil
	}
	for _, issue := range result.Expressions {
		fmt.Fprintf(out, "%s=%q: %s\n", issue.Attribute, issue.Source, issue.Message)
	}
	for _, v := range result.Data {
		fmt.Fprintln(out, v.Error())
	}
	return nil
}
