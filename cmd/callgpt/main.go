package main

import (
	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/help"
	help_cmd "github.com/go-go-golems/glazed/pkg/help/cmd"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/callgpt/cmd/callgpt/cmds"
)

var flags cmds.RootFlags

var rootCmd = &cobra.Command{
	Use:          "callgpt",
	Short:        "callgpt answers phone calls with a streaming voice agent",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		err := clay.InitLogger()
		cobra.CheckErr(err)
		flags.ConfigPath, _ = cmd.Flags().GetString("config")
	},
}

func main() {
	helpSystem := help.NewHelpSystem()
	help_cmd.SetupCobraRootCommand(helpSystem, rootCmd)

	err := clay.InitViper("callgpt", rootCmd)
	cobra.CheckErr(err)
	err = clay.InitLogger()
	cobra.CheckErr(err)
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.callgpt/config.yaml)")
	}

	ticketsCmd, err := cmds.NewTicketsCommand(&flags)
	cobra.CheckErr(err)
	knowledgeCmd, err := cmds.NewKnowledgeCommand(&flags)
	cobra.CheckErr(err)

	rootCmd.AddCommand(cmds.NewServeCommand(&flags), ticketsCmd, knowledgeCmd)

	err = rootCmd.Execute()
	cobra.CheckErr(err)
}
