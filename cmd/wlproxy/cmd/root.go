// Package cmd provides the CLI commands for wlproxy.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wlproxy/wlproxy/internal/config"
)

var cfgFile string
var stateFilePath string

var rootCmd = &cobra.Command{
	Use:   "wlproxy",
	Short: "wlproxy - intercepting Wayland protocol proxy",
	Long: `wlproxy sits between Wayland clients and a real compositor, forwarding
the binary protocol stream in both directions while giving host programs
the ability to observe, transform, synthesize, filter, and re-type the
objects exchanged on that stream.

Quick start:
  1. Create a config file: wlproxy.yaml
  2. Run: wlproxy serve

Configuration:
  Config is loaded from wlproxy.yaml in the current directory,
  $HOME/.wlproxy/, or /etc/wlproxy/.

  Environment variables can override config values with the WLPROXY_
  prefix. Example: WLPROXY_LISTEN_SOCKET_PATH=wayland-2

Commands:
  serve       Start the proxy, accepting client connections
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./wlproxy.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFilePath, "state", "", "path to the global-mapper state file (default: $XDG_RUNTIME_DIR/wlproxy-state.json)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
