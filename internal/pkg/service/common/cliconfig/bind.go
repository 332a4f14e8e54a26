package cliconfig

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/keboola/cluster-scheduler/internal/pkg/env"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

type SetBy int

const (
	SetByDefault SetBy = iota
	SetByEnv
	SetByFlag
)

// BindFlagsAndEnvToStruct sets the target fields from the flags and ENVs.
// Priority: flag > ENV > flag default value.
func BindFlagsAndEnvToStruct(target any, fs *pflag.FlagSet, envs env.Provider, naming *env.NamingConvention) error {
	v := viper.New()
	if _, err := BindFlagsAndEnvToViper(v, target, fs, envs, naming); err != nil {
		return err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          keyTag,
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return errors.PrefixError(err, "cannot decode configuration")
	}
	return nil
}

// BindFlagsAndEnvToViper sets a viper value for each configuration key which has a flag.
// It returns the source of each value.
func BindFlagsAndEnvToViper(v *viper.Viper, target any, fs *pflag.FlagSet, envs env.Provider, naming *env.NamingConvention) (map[string]SetBy, error) {
	fields, err := leafFields(target)
	if err != nil {
		return nil, err
	}

	setBy := make(map[string]SetBy)
	for _, f := range fields {
		flag := fs.Lookup(f.FlagName)
		if flag == nil {
			continue
		}

		switch envValue, found := envs.Lookup(naming.FlagToEnv(f.FlagName)); {
		case flag.Changed:
			v.Set(f.Key, flagValue(flag))
			setBy[f.Key] = SetByFlag
		case found:
			v.Set(f.Key, envValue)
			setBy[f.Key] = SetByEnv
		default:
			v.SetDefault(f.Key, flagValue(flag))
			setBy[f.Key] = SetByDefault
		}
	}

	return setBy, nil
}

func flagValue(flag *pflag.Flag) any {
	if sv, ok := flag.Value.(pflag.SliceValue); ok {
		if items := sv.GetSlice(); len(items) > 0 {
			return items
		}
		return nil
	}
	return flag.Value.String()
}
