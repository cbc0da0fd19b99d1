package main

import (
	"fmt"
	"os"

	"github.com/mjl-/sconf"
	"github.com/spf13/cobra"
)

// Config is the configuration for the serve command, parsed with sconf.
type Config struct {
	Address        string `sconf-doc:"Address to listen on for the http server, e.g. localhost:8430."`
	Pedantic       bool   `sconf:"optional" sconf-doc:"Strict parsing, reject deviations that are otherwise tolerated, such as bare newlines and overlong lines."`
	MaxLineLength  int    `sconf:"optional" sconf-doc:"Maximum accepted header/body line length in bytes. Default 8192, or 1000 when Pedantic is set."`
	MaxMessageSize int64  `sconf:"optional" sconf-doc:"Maximum accepted message size in bytes for the http server. Default 100MB."`
	AdminAddress   string `sconf:"optional" sconf-doc:"Address to listen on for prometheus metrics, e.g. localhost:8431. If empty, metrics are served on Address under /metrics."`
}

func loadConfig(path string) (Config, error) {
	config := Config{
		Address:        "localhost:8430",
		MaxMessageSize: 100 * 1024 * 1024,
	}
	if err := sconf.ParseFile(path, &config); err != nil {
		return config, fmt.Errorf("parsing config file %s: %v", path, err)
	}
	return config, nil
}

var describeconfCmd = &cobra.Command{
	Use:   "describeconf",
	Short: "Print an example config file for the serve command, with docs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config := Config{
			Address:        "localhost:8430",
			MaxMessageSize: 100 * 1024 * 1024,
		}
		if err := sconf.Describe(os.Stdout, &config); err != nil {
			return fmt.Errorf("describing config: %v", err)
		}
		return nil
	},
}
