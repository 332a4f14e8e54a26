package env

import (
	"strings"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// NamingConvention maps a flag name to an ENV variable name.
type NamingConvention struct {
	prefix string
}

func NewNamingConvention(prefix string) *NamingConvention {
	return &NamingConvention{prefix: prefix}
}

// FlagToEnv converts flag name to ENV variable name,
// for example "etcd-endpoint" -> "SCHEDULER_ETCD_ENDPOINT".
func (n *NamingConvention) FlagToEnv(flagName string) string {
	if flagName == "" {
		panic(errors.New("flag name cannot be empty"))
	}
	r := strings.NewReplacer("-", "_", ".", "_")
	return n.prefix + strings.ToUpper(r.Replace(flagName))
}
