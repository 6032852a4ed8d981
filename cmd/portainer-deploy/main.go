package main

import (
	"fmt"
	"os"

	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	app := &cobra.Command{
		Use:     os.Args[0],
		Short:   "Deploys a stack to Portainer (settings from PLUGIN_* ENV vars)",
		Version: version,
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			rootLogger := logex.StandardLogger()

			osutil.ExitIfError(deployFromEnv(
				osutil.CancelOnInterruptOrTerminate(rootLogger),
				os.Stdout,
				rootLogger))
		},
	}

	app.AddCommand(endpointsEntry())
	app.AddCommand(stacksEntry())

	if err := app.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
