package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/coterie-labs/experiment-console/internal/model"
	"github.com/coterie-labs/experiment-console/pkg/statsig"
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Manage experiments",
}

var experimentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments from local storage and the platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "local")
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			local  []model.Experiment
			remote []statsig.Experiment
		)
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			var err error
			local, err = env.Manager.List(ctx)
			return err
		})
		if env.Platform.Configured() {
			g.Go(func() error {
				var err error
				remote, err = env.Platform.ListExperiments(ctx)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Printf("%-40s %-12s %-30s\n", "ID", "STATUS", "NAME")
		for _, exp := range local {
			fmt.Printf("%-40s %-12s %-30s\n", exp.ID, exp.Status, exp.Name)
		}
		if len(remote) > 0 {
			fmt.Printf("\nplatform (%d):\n", len(remote))
			for _, exp := range remote {
				fmt.Printf("%-40s %-12s %-30s\n", exp.ID, exp.Status, exp.Name)
			}
		}
		return nil
	},
}

var experimentsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one experiment as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "local")
		if err != nil {
			return err
		}
		defer env.Close()

		exp, err := env.Manager.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(exp)
	},
}

var createFile string

var experimentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft experiment from a YAML definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "local")
		if err != nil {
			return err
		}
		defer env.Close()

		exp, err := loadDefinition(createFile)
		if err != nil {
			return err
		}
		created, err := env.Manager.Create(cmd.Context(), *exp)
		if err != nil {
			return err
		}
		return printJSON(created)
	},
}

var publishNew bool
var publishFile string

var experimentsPublishCmd = &cobra.Command{
	Use:   "publish [id]",
	Short: "Publish an experiment to the platform",
	Long:  "Publishes an existing experiment by id, or with --new creates it directly on the platform from a YAML definition.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "publish")
		if err != nil {
			return err
		}
		defer env.Close()

		if publishNew {
			exp, err := loadDefinition(publishFile)
			if err != nil {
				return err
			}
			published, err := env.Manager.PublishNew(cmd.Context(), *exp)
			if err != nil {
				return err
			}
			return printJSON(published)
		}

		if len(args) != 1 {
			return eris.New("experiment id required unless --new is set")
		}
		published, err := env.Manager.Publish(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(published)
	},
}

var experimentsArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive an experiment (terminal)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "local")
		if err != nil {
			return err
		}
		defer env.Close()

		archived, err := env.Manager.Archive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(archived)
	},
}

var experimentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an experiment from every tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "local")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Manager.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var experimentsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import every experiment the platform knows about",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "import")
		if err != nil {
			return err
		}
		defer env.Close()

		imported, err := env.Manager.ImportFromPlatform(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("imported %d experiments\n", len(imported))
		for _, exp := range imported {
			fmt.Printf("  %-40s %s\n", exp.ID, exp.Name)
		}
		return nil
	},
}

// loadDefinition reads an experiment definition from a YAML file.
func loadDefinition(path string) (*model.Experiment, error) {
	if path == "" {
		return nil, eris.New("definition file required (-f)")
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read definition %s", path)
	}
	var exp model.Experiment
	if err := yaml.Unmarshal(buf, &exp); err != nil {
		return nil, eris.Wrapf(err, "parse definition %s", path)
	}
	return &exp, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	experimentsCreateCmd.Flags().StringVarP(&createFile, "file", "f", "", "YAML experiment definition")
	experimentsPublishCmd.Flags().BoolVar(&publishNew, "new", false, "create directly on the platform")
	experimentsPublishCmd.Flags().StringVarP(&publishFile, "file", "f", "", "YAML experiment definition (with --new)")

	experimentsCmd.AddCommand(
		experimentsListCmd,
		experimentsGetCmd,
		experimentsCreateCmd,
		experimentsPublishCmd,
		experimentsArchiveCmd,
		experimentsDeleteCmd,
		experimentsImportCmd,
	)
	rootCmd.AddCommand(experimentsCmd)
}
