package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guided-traffic/body-consumer/internal/config"
)

var (
	// Build information injected at build time
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "body-consumer",
		Short: "Body consumer decodes request bodies as text, JSON, blobs, forms or array buffers",
		Long: `Body consumer reads a complete body exactly once and decodes it into one of
five result kinds: text, json, blob, formData or arrayBuffer.

Bodies arrive over HTTP (POST /v1/consume/{kind}), from Envoy through the
external processing filter, or from a file or S3 object on the command line.
A body can be consumed only once; later attempts are rejected.

All configuration is done through YAML configuration files and BODYC_*
environment variables. Use --config to specify a configuration file.`,
		RunE: runServe,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (YAML format)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(consumeCmd)
}

func initConfig() {
	config.InitConfig(cfgFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
