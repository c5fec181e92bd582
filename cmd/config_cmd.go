package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/georefresh/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, edit and inspect the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented default config",
	Long: `Write a commented default config to path (default: .georefresh/config.yaml).
Refuses to overwrite an existing file unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := localConfigPath
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set one key in the config file",
	Long: `Set a dotted key in the config file, keeping comments intact.
List values are comma separated.

Examples:
  georefresh config set git.branch main
  georefresh config set artifacts.paths data,index.csv
  georefresh config set schedule.interval 6h --file ~/.config/georefresh/config.yaml`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		if path == "" {
			path = configTarget()
		}
		if err := config.SetValue(path, args[0], args[1]); err != nil {
			return err
		}

		// The edit must leave a loadable config behind.
		v := viper.New()
		setDefaults(v)
		v.SetConfigFile(path)
		if _, err := loadConfig(v); err != nil {
			return fmt.Errorf("%s was updated but no longer validates: %w", path, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", args[0], args[1], path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := loadConfig(viper.GetViper()); err != nil {
			return err
		}
		out, err := yaml.Marshal(viper.AllSettings())
		if err != nil {
			return fmt.Errorf("encoding config: %w", err)
		}
		w := cmd.OutOrStdout()
		if used := viper.ConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(w, "# %s\n", used)
		}
		_, err = w.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configSetCmd, configShowCmd)

	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configSetCmd.Flags().String("file", "", "config file to edit (default: the one in use, else .georefresh/config.yaml)")
}

// configTarget is the file config set edits when --file is not given.
func configTarget() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); !errors.Is(err, os.ErrNotExist) {
			return used
		}
	}
	return localConfigPath
}
