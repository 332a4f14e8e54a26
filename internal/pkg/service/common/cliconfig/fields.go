package cliconfig

import (
	"reflect"
	"strings"
	"time"

	"github.com/umisama/go-regexpcache"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

const (
	keyTag       = "configKey"
	usageTag     = "configUsage"
	sensitiveTag = "sensitive"
)

// field is a leaf value of a configuration structure.
type field struct {
	Key       string // dot separated path of "configKey" tags, for example "etcd.endpoint"
	FlagName  string // kebab-case version of the key, for example "etcd-endpoint"
	Usage     string
	Sensitive bool
	Value     reflect.Value
}

// leafFields walks the configuration structure, nested structs are traversed.
// Fields without the "configKey" tag are ignored.
func leafFields(config any) ([]field, error) {
	v := reflect.ValueOf(config)
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, errors.Errorf(`type "%s" is not a struct or a pointer to a struct`, v.Type().String())
	}
	var out []field
	walk(v, nil, &out)
	return out, nil
}

func walk(v reflect.Value, parents []string, out *[]field) {
	t := v.Type()
	for i := range t.NumField() {
		structField := t.Field(i)
		key, _, _ := strings.Cut(structField.Tag.Get(keyTag), ",")
		if key == "" || key == "-" {
			continue
		}

		path := append(append([]string{}, parents...), key)
		value := v.Field(i)
		if value.Kind() == reflect.Struct && value.Type() != reflect.TypeOf(time.Time{}) {
			walk(value, path, out)
			continue
		}

		flagParts := make([]string, len(path))
		for j, part := range path {
			flagParts[j] = kebabCase(part)
		}

		*out = append(*out, field{
			Key:       strings.Join(path, "."),
			FlagName:  strings.Join(flagParts, "-"),
			Usage:     structField.Tag.Get(usageTag),
			Sensitive: structField.Tag.Get(sensitiveTag) == "true",
			Value:     value,
		})
	}
}

// kebabCase converts "sessionTTLSeconds" to "session-ttl-seconds".
func kebabCase(s string) string {
	str := regexpcache.MustCompile(`([a-z0-9])([A-Z])`).ReplaceAllString(s, "$1-$2")
	str = regexpcache.MustCompile(`([A-Z]+)([A-Z][a-z])`).ReplaceAllString(str, "$1-$2")
	str = regexpcache.MustCompile(`[-.\s]+`).ReplaceAllString(str, "-")
	return strings.ToLower(strings.Trim(str, "-"))
}
