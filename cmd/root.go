// Package cmd
package cmd

import (
	"fmt"
	"log"
	"os"

	"meshd/pkg/config"
	"meshd/pkg/utils"

	"github.com/spf13/cobra"
)

var showVersion bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           utils.RuntimeModuleName,
	Short:         utils.RuntimeModuleName + " mesh VPN daemon",
	SilenceErrors: true,
	SilenceUsage:  true,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			execVersionCmd(cmd, args)
			os.Exit(0)
		}

		_ = cmd.Usage()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	log.SetFlags(0)

	// Configure cobra
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Set global flags
	rootCmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "Print version and exit")
	rootCmd.PersistentFlags().StringVarP(&config.ConfigFileFlag, "config", "c", "", "The path to the config file")
	rootCmd.PersistentFlags().StringVarP(&config.NetNameFlag, "net", "n", "", "Connect to net NETNAME")
	rootCmd.PersistentFlags().StringVar(&config.PidFileFlag, "pidfile", "", "Write PID and socket information to FILENAME")

	// Register persistent function for all commands
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		execRootPersistentPreRun()
	}
}

func execRootPersistentPreRun() {
	utils.InitEnv()
	config.SetConfig(config.ConfigFileFlag)
}

func execVersionCmd(_ *cobra.Command, _ []string) {
	fmt.Printf("%s version %s\n", utils.RuntimeModuleName, utils.Version)
}
