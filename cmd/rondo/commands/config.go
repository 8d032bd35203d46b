package commands

import (
	"github.com/rondonetworks/rondo/src/dpos"
)

//CLIConfig contains configuration for the Sim command
type CLIConfig struct {
	Rondo  dpos.Config `mapstructure:",squash"`
	Miners int         `mapstructure:"miners"`
	Rounds int         `mapstructure:"rounds"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Rondo:  *dpos.NewDefaultConfig(),
		Miners: 5,
		Rounds: 3,
	}
}
