package cliconfig

import (
	"reflect"
	"time"

	"github.com/spf13/pflag"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var durationType = reflect.TypeOf(time.Duration(0))

// GenerateFlags generates flags from the config structure to the FlagSet.
// Each field tagged by the "configKey" tag is mapped to one flag, nested keys are joined by a dash.
// Field can optionally have a "configUsage" tag.
// The current field value is used as the flag default value.
func GenerateFlags(config any, fs *pflag.FlagSet) error {
	fields, err := leafFields(config)
	if err != nil {
		return err
	}

	for _, f := range fields {
		switch {
		case f.Value.Type() == durationType:
			fs.Duration(f.FlagName, time.Duration(f.Value.Int()), f.Usage)
		case f.Value.Kind() == reflect.String:
			fs.String(f.FlagName, f.Value.String(), f.Usage)
		case f.Value.Kind() == reflect.Bool:
			fs.Bool(f.FlagName, f.Value.Bool(), f.Usage)
		case f.Value.Kind() == reflect.Int:
			fs.Int(f.FlagName, int(f.Value.Int()), f.Usage)
		case f.Value.Kind() == reflect.Float64:
			fs.Float64(f.FlagName, f.Value.Float(), f.Usage)
		case f.Value.Kind() == reflect.Slice && f.Value.Type().Elem().Kind() == reflect.String:
			fs.StringSlice(f.FlagName, f.Value.Interface().([]string), f.Usage)
		default:
			return errors.Errorf(`field "%s" has unsupported type "%s"`, f.Key, f.Value.Type().String())
		}
	}

	return nil
}
