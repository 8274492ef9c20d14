package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "github.com/enjicalc/calc-engine/pkg/api/grpc"
	"github.com/enjicalc/calc-engine/pkg/formula"
	"github.com/enjicalc/calc-engine/pkg/project"
	"github.com/enjicalc/calc-engine/pkg/template"
)

var evalCmd = &cobra.Command{
	Use:   "eval FORMULA",
	Short: "Evaluate a single formula",
	Example: `  calc-engine eval "sqrt(a^2 + b^2)" --var a=3 --var b=4
  calc-engine eval "x > 1 ? 1 : 0" --var x=2 --server localhost:8788`,
	Args: cobra.ExactArgs(1),
	RunE: runEval,
}

var verifyCmd = &cobra.Command{
	Use:   "verify TEMPLATE",
	Short: "Check a template's structure and that every component solves",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var solveCmd = &cobra.Command{
	Use:   "solve TEMPLATE",
	Short: "Solve a template and write <name>_evaluated.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runSolve,
}

var exportCmd = &cobra.Command{
	Use:   "export TEMPLATE",
	Short: "Write the project import document of a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var importCmd = &cobra.Command{
	Use:   "import TEMPLATE",
	Short: "Create a project from a template through the GraphQL API",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	evalCmd.Flags().StringArray("var", nil, "Variable binding name=value (repeatable)")
	evalCmd.Flags().Bool("echo", false, "Print the formula next to its value")
	evalCmd.Flags().String("server", "", "Evaluate on a calc-engine gRPC server at this address")

	solveCmd.Flags().StringP("output", "o", "", "Output file (default <name>_evaluated.json next to the template)")

	exportCmd.Flags().StringP("output", "o", "", "Output file (default <name>_project.json next to the template)")

	importCmd.Flags().String("endpoint", "", "GraphQL endpoint (default from config, env GRAPHQL_URL)")
	importCmd.Flags().String("cookie", "", "Cookie header sent with every request")
	importCmd.Flags().Duration("timeout", 2*time.Minute, "Overall import timeout")
}

func runEval(cmd *cobra.Command, args []string) error {
	src := args[0]
	pairs, _ := cmd.Flags().GetStringArray("var")
	vars, err := parseVars(pairs)
	if err != nil {
		return err
	}

	var v float64
	if addr, _ := cmd.Flags().GetString("server"); addr != "" {
		v, err = evalRemote(cmd.Context(), addr, src, vars)
	} else {
		v, err = formula.Evaluate(src, vars)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if echo, _ := cmd.Flags().GetBool("echo"); echo {
		fmt.Fprintf(out, "%s = %s\n", src, formatResult(v))
		return nil
	}
	fmt.Fprintln(out, formatResult(v))
	return nil
}

func evalRemote(ctx context.Context, addr, src string, vars formula.Values) (float64, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Debug().Str("server", addr).Msg("evaluating remotely")
	return grpcapi.NewCalculatorClient(conn).EvaluateFormula(ctx, src, vars)
}

// parseVars turns name=value pairs into a scope. Values stay text; the
// evaluator converts them when the formula reads them.
func parseVars(pairs []string) (formula.Values, error) {
	vars := formula.Values{}
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || !isName(name) {
			return nil, fmt.Errorf("invalid --var %q: want name=value", p)
		}
		vars[name] = strings.TrimSpace(value)
	}
	return vars, nil
}

func loadTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := template.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	t, err := loadTemplate(args[0])
	if err != nil {
		return err
	}
	symbols, err := template.Solve(t)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d components, %d symbols, %d sections)\n",
		args[0], len(t.Components), symbols.Len(), len(t.Sections))
	return nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	t, err := loadTemplate(args[0])
	if err != nil {
		return err
	}
	symbols, err := template.Solve(t)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = template.EvaluatedPath(args[0])
	}
	if err := template.WriteEvaluated(out, symbols); err != nil {
		return err
	}
	log.Info().Str("template", args[0]).Str("output", out).Int("symbols", symbols.Len()).Msg("template solved")
	return nil
}

func projectPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_project.json"
}

func runExport(cmd *cobra.Command, args []string) error {
	t, err := loadTemplate(args[0])
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("output")
	if out == "" {
		out = projectPath(args[0])
	}
	if err := project.FromTemplate(t).WriteImportFile(out); err != nil {
		return err
	}
	log.Info().Str("template", args[0]).Str("output", out).Msg("project document written")
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	t, err := loadTemplate(args[0])
	if err != nil {
		return err
	}

	endpoint, _ := cmd.Flags().GetString("endpoint")
	if endpoint == "" {
		endpoint = cfg.GraphQLURL
	}
	cookie, _ := cmd.Flags().GetString("cookie")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	id, err := project.NewImporter(endpoint, cookie).Import(ctx, project.FromTemplate(t))
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
