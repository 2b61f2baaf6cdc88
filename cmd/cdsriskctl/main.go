// Command cdsriskctl stages and runs engine valuations from a trades file,
// without a database.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "cdsriskctl",
		Usage: "offline CDS valuation runs against the risk engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "engine", Value: "ore", Usage: "engine binary", EnvVars: []string{"ENGINE_BINARY_PATH"}},
			&cli.StringFlag{Name: "engine-config", Value: "/opt/ore/config", Usage: "directory holding Conventions.xml and pricingengine.xml", EnvVars: []string{"ENGINE_CONFIG_PATH"}},
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "engine run time limit", EnvVars: []string{"ENGINE_TIMEOUT"}},
			&cli.StringFlag{Name: "work-root", Value: os.TempDir(), Usage: "parent of run working directories", EnvVars: []string{"ENGINE_WORK_ROOT"}},
			&cli.BoolFlag{Name: "keep", Usage: "keep working directories after runs", EnvVars: []string{"KEEP_WORK_DIRS"}},
			&cli.StringFlag{Name: "base-currency", Value: "USD", Usage: "reporting currency", EnvVars: []string{"BASE_CURRENCY"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			generateCommand(),
			runCommand(),
			stressCommand(),
			snapshotCommand(),
			healthcheckCommand(),
		},
	}
}
