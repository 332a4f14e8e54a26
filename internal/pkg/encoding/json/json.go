// Package json wraps the "json-iterator" library, configured to be compatible with the standard library.
package json

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// nolint: gochecknoglobals
var api = jsoniter.ConfigCompatibleWithStandardLibrary

func Encode(v any, pretty bool) ([]byte, error) {
	var data []byte
	var err error
	if pretty {
		data, err = api.MarshalIndent(v, "", "  ")
	} else {
		data, err = api.Marshal(v)
	}
	if err != nil {
		return nil, errors.Errorf("json encoding failed: %w", err)
	}
	return data, nil
}

func EncodeString(v any, pretty bool) (string, error) {
	data, err := Encode(v, pretty)
	return string(data), err
}

func Decode(data []byte, v any) error {
	if err := api.Unmarshal(data, v); err != nil {
		return errors.Errorf("json decoding failed: %w", err)
	}
	return nil
}

func DecodeString(data string, v any) error {
	return Decode([]byte(data), v)
}
