package cliconfig

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

const sensitiveMask = "*****"

type KVs []KV

type KV struct {
	Key   string
	Value string
}

func (v KVs) String() string {
	var out strings.Builder
	for i, kv := range v {
		if i > 0 {
			out.WriteString(" ")
		}
		out.WriteString(kv.Key)
		out.WriteString("=")
		out.WriteString(kv.Value)
		out.WriteString(";")
	}
	return out.String()
}

// Dump a configuration structure as key-value pairs, values of sensitive fields are masked.
func Dump(config any) (KVs, error) {
	fields, err := leafFields(config)
	if err != nil {
		return nil, err
	}

	out := make(KVs, 0, len(fields))
	for _, f := range fields {
		var str string
		switch {
		case f.Sensitive && !f.Value.IsZero():
			str = sensitiveMask
		case f.Value.Kind() == reflect.Slice:
			str = strings.Join(cast.ToStringSlice(f.Value.Interface()), ",")
		default:
			if s, ok := f.Value.Interface().(fmt.Stringer); ok {
				str = s.String()
			} else {
				str = cast.ToString(f.Value.Interface())
			}
		}
		out = append(out, KV{Key: f.Key, Value: str})
	}
	return out, nil
}
