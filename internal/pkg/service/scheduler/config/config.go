// Package config provides configuration of the scheduler worker.
// Values are loaded from flags and ENVs, see LoadFrom.
package config

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"

	"github.com/keboola/cluster-scheduler/internal/pkg/env"
	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/cliconfig"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/common/etcdclient"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/coordination"
	"github.com/keboola/cluster-scheduler/internal/pkg/service/scheduler/worker"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
	validatorPkg "github.com/keboola/cluster-scheduler/internal/pkg/validator"
)

const EnvPrefix = "SCHEDULER_"

type Config struct {
	DebugLog  bool              `configKey:"debugLog" configUsage:"Enable debug log level."`
	LogFormat string            `configKey:"logFormat" configUsage:"Log format: console or json." validate:"required,oneof=console json"`
	NodeIP    string            `configKey:"nodeIP" configUsage:"IP address of the worker. Detected if empty." validate:"omitempty,ip"`
	Etcd      etcdclient.Config `configKey:"etcd"`
	Scheduler worker.Config     `configKey:"scheduler"`
	Metrics   Metrics           `configKey:"metrics"`
}

type Metrics struct {
	Listen string `configKey:"listen" configUsage:"Listen address of the Prometheus metrics endpoint. Empty to disable." validate:"omitempty,hostname_port"`
}

func NewConfig() Config {
	return Config{
		LogFormat: string(log.LogFormatConsole),
		Etcd:      etcdclient.NewConfig(),
		Scheduler: worker.NewConfig(),
		Metrics: Metrics{
			Listen: "0.0.0.0:9000",
		},
	}
}

// LoadFrom parses the arguments, merges flags and ENVs with default values, then the config is normalized and validated.
func LoadFrom(args []string, envs env.Provider) (Config, error) {
	cfg := NewConfig()

	fs := pflag.NewFlagSet("scheduler-worker", pflag.ContinueOnError)
	if err := cliconfig.GenerateFlags(cfg, fs); err != nil {
		return Config{}, err
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cliconfig.BindFlagsAndEnvToStruct(&cfg, fs, envs, env.NewNamingConvention(EnvPrefix)); err != nil {
		return Config{}, err
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.PrefixError(err, "invalid configuration")
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.NodeIP = strings.TrimSpace(c.NodeIP)
	c.Etcd.Normalize()
	c.Scheduler.ServerRoot = normalizePath(c.Scheduler.ServerRoot)
	c.Scheduler.TaskRoot = normalizePath(c.Scheduler.TaskRoot)
}

func (c *Config) Validate() error {
	errs := errors.NewMultiError()
	if err := c.Etcd.Validate(); err != nil {
		errs.Append(err)
	}

	v := validatorPkg.New(validatorPkg.Rule{
		Tag: "coordinationPath",
		Func: func(_ context.Context, fl validator.FieldLevel) bool {
			return coordination.ValidatePath(fl.Field().String()) == nil && fl.Field().String() != coordination.Root
		},
		ErrorMessage: `must be an absolute path, for example "/tasks"`,
	})
	if err := v.Validate(context.Background(), *c); err != nil {
		errs.Append(err)
	}

	if c.Scheduler.ServerRoot != "" && c.Scheduler.ServerRoot == c.Scheduler.TaskRoot {
		errs.Append(errors.New(`"scheduler.serverRoot" and "scheduler.taskRoot" must be different`))
	}

	return errs.ErrorOrNil()
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	return coordination.JoinPath(path)
}
