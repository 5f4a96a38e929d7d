package configfx

import (
	"github.com/spf13/pflag"
)

const FlagConfig = "config"

// AddFlags registers flags shared by every command.
func AddFlags(fs *pflag.FlagSet) {
	// Config file flag
	fs.StringP(FlagConfig, "c", "", "Config file")
}
