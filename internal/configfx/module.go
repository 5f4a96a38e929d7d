package configfx

import (
	"github.com/spf13/pflag"
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(ViperProvider),
)

// WithFlags supplies the command line flags the configuration is bound to.
func WithFlags(fs *pflag.FlagSet) fx.Option {
	return fx.Supply(fs)
}
