package runtime

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ConfigKeyAnnotation marks a flag with the configuration key it overrides.
const ConfigKeyAnnotation = "syncwave_config_key"

// MarkFlag records that flag name of flags overrides key.
func MarkFlag(flags *pflag.FlagSet, name, key string) {
	// SetAnnotation only fails for unknown flags, which is a programming error.
	if err := flags.SetAnnotation(name, ConfigKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// BindMarked binds every marked flag in flags to v. Only flags set on the
// command line take precedence over the config file.
func BindMarked(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[ConfigKeyAnnotation]
		if err != nil || len(keys) == 0 {
			return
		}
		err = v.BindPFlag(keys[0], f)
	})
	return err
}
