package flags

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Each helper defines a flag whose default is the current value of key in v
// and binds the flag back to key, so flags override file and environment.

func Bool(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.Bool(name, v.GetBool(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func BoolP(v *viper.Viper, fs *pflag.FlagSet, key, name, shorthand, usage string) {
	fs.BoolP(name, shorthand, v.GetBool(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func String(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.String(name, v.GetString(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func StringP(v *viper.Viper, fs *pflag.FlagSet, key, name, shorthand, usage string) {
	fs.StringP(name, shorthand, v.GetString(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func StringSlice(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.StringSlice(name, v.GetStringSlice(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func Int(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.Int(name, v.GetInt(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func IntP(v *viper.Viper, fs *pflag.FlagSet, key, name, shorthand, usage string) {
	fs.IntP(name, shorthand, v.GetInt(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}

func Duration(v *viper.Viper, fs *pflag.FlagSet, key, name, usage string) {
	fs.Duration(name, v.GetDuration(key), usage)
	_ = v.BindPFlag(key, fs.Lookup(name))
}
