package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sheetboard/internal/client"
)

// newRootCmd builds the command tree. Settings resolve flag, then
// BOARDCTL_* env, then ~/.boardctl.yaml.
func newRootCmd(v *viper.Viper, out io.Writer) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "boardctl",
		Short:         "Inspect and edit sheetboard projects from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(v, cfgFile)
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/.boardctl.yaml)")
	pf.String("server", "http://localhost:8080", "Base URL of the sheetboard server")
	pf.String("token", "", "Session token from 'boardctl login'")
	pf.String("access-token", "", "Google access token for task tables")
	for _, name := range []string{"server", "token", "access-token"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newLoginCmd(v),
		newProjectsCmd(v),
		newTasksCmd(v),
		newMoveCmd(v),
		newEditCmd(v),
	)
	return root
}

func loadConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix("BOARDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.SetConfigFile(filepath.Join(home, ".boardctl.yaml"))
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if cfgFile == "" {
				return nil
			}
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func newClient(v *viper.Viper) *client.Client {
	return client.New(v.GetString("server"), v.GetString("token"), v.GetString("access-token"), nil)
}
