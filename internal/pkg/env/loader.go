package env

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/keboola/cluster-scheduler/internal/pkg/log"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// Files in order of precedence.
func Files() []string {
	return []string{".env.local", ".env"}
}

// LoadDotEnv loads ENVs from ".env" files in the dirs, if they exist.
// Existing ENVs take precedence.
func LoadDotEnv(ctx context.Context, logger log.Logger, osEnvs *Map, dirs []string) *Map {
	envs := FromMap(osEnvs.ToMap())
	for _, dir := range dirs {
		for _, file := range Files() {
			path := filepath.Join(dir, file)
			info, err := os.Stat(path)
			switch {
			case err != nil && os.IsNotExist(err):
				continue
			case err != nil:
				logger.Warnf(ctx, `cannot check if path "%s" exists: %s`, path, err)
				continue
			case info.IsDir():
				continue
			}

			fileEnvs, err := LoadEnvFile(path)
			if err != nil {
				logger.Warn(ctx, err.Error())
				continue
			}

			envs.Merge(fileEnvs, false)
			logger.Infof(ctx, `loaded env file "%s"`, path)
		}
	}
	return envs
}

func LoadEnvFile(path string) (*Map, error) {
	data, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Errorf(`cannot parse env file "%s": %w`, path, err)
	}
	return FromMap(data), nil
}

func LoadEnvString(str string) (*Map, error) {
	data, err := godotenv.Unmarshal(str)
	if err != nil {
		return nil, err
	}
	return FromMap(data), nil
}
