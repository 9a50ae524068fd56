package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/X-rus/xnet/pkg/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "xnet",
	Short: "Raw HTTP/1.1 client with proxy chaining",
	Long: `xnet sends HTTP/1.1 requests over its own socket layer.

It supports keep-alive reuse, chunked bodies, gzip and deflate, cookies,
redirects and HTTP CONNECT, SOCKS4, SOCKS4a, SOCKS5 or chained proxies.

Settings come from --config (YAML) and the XNET_PROXY, XNET_USER_AGENT,
XNET_ACCEPT_ALL_CERTIFICATES and XNET_LOG_LEVEL environment variables.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xnet:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads --config when given, otherwise the defaults plus the
// environment.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
