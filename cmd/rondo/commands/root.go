package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for Rondo
var RootCmd = &cobra.Command{
	Use:              "rondo",
	Short:            "rondo consensus",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewKeygenCmd(),
		NewSimCmd(),
		VersionCmd,
	)
}
