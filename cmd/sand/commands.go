package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sand/internal/loader"
	"sand/internal/sandbox"
	"sand/internal/store"
	"sand/internal/transform"
)

const defaultProject = "Default"

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the schema and the Default project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.ProjectByName(ctx, defaultProject)
			if errors.Is(err, store.ErrNotFound) {
				p, err = st.CreateProject(ctx, store.Project{Name: defaultProject, Description: "Default project"})
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s storage; project %q has id %d\n", st.Kind(), p.Name, p.ID)
			return nil
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.CreateProject(ctx, store.Project{Name: args[0], Description: description})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %q with id %d\n", p.Name, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "project description")
	return cmd
}

func newLoadCmd(a *app) *cobra.Command {
	var (
		project   string
		pattern   string
		delimiter string
		trim      bool
		snake     bool
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load CSV files into a project",
		Long: `Load every CSV file matching --tables into the project. The pattern
supports ** to match across directories. Each file becomes a table named after
the file; a file whose content is already loaded in the project is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.ProjectByName(ctx, project)
			if err != nil {
				return fmt.Errorf("project %q: %w", project, err)
			}
			opt := loader.Options{TrimSpace: trim, SnakeCase: snake}
			if delimiter != "" {
				opt.Comma = []rune(delimiter)[0]
			}

			outs, err := loader.New(st, opt, a.log).LoadGlob(ctx, p.ID, pattern)
			for _, o := range outs {
				status := "loaded"
				if o.Skipped {
					status = "unchanged"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\ttable %d (%d rows)\n", status, o.Path, o.Table.ID, o.Table.Size)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", defaultProject, "project name")
	cmd.Flags().StringVarP(&pattern, "tables", "t", "", "glob of CSV files to load, e.g. data/**/*.csv")
	cmd.Flags().StringVar(&delimiter, "delimiter", ",", "field delimiter")
	cmd.Flags().BoolVar(&trim, "trim", false, "trim whitespace around cells")
	cmd.Flags().BoolVar(&snake, "snake-case", false, "rewrite headers to ascii snake_case")
	_ = cmd.MarkFlagRequired("tables")
	return cmd
}

func newTransformCmd(a *app) *cobra.Command {
	var (
		tableID int64
		reqPath string
	)
	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Run one transformation request and print the results as JSON",
		Long: `Run a transformation request read from --request (a JSON file, or - for
stdin) against --table and print the per-row results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var req transform.Request
			in := cmd.InOrStdin()
			if reqPath != "-" {
				f, err := os.Open(reqPath)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			if err := json.NewDecoder(in).Decode(&req); err != nil {
				return fmt.Errorf("decode request: %w", err)
			}
			if tableID == 0 {
				tableID = req.TableID
			}
			if tableID <= 0 {
				return fmt.Errorf("--table or table_id in the request is required")
			}

			st, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			eng := transform.NewEngine(st, a.compiler(), a.log)
			results, err := eng.Run(ctx, tableID, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}
	cmd.Flags().Int64Var(&tableID, "table", 0, "table id (overrides table_id in the request)")
	cmd.Flags().StringVar(&reqPath, "request", "-", "request JSON file, or - for stdin")
	return cmd
}

func (a *app) compiler() *sandbox.Compiler {
	return sandbox.NewCompiler(sandbox.Options{
		Timeout:          a.cfg.Sandbox.Timeout.D(),
		MaxCallStackSize: a.cfg.Sandbox.MaxCallStackSize,
	})
}
