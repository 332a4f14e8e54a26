package model

import (
	"github.com/keboola/cluster-scheduler/internal/pkg/encoding/json"
	"github.com/keboola/cluster-scheduler/internal/pkg/utils/errors"
)

// Codec encodes descriptors stored in the coordination store.
type Codec interface {
	EncodeWorker(w *Worker) ([]byte, error)
	DecodeWorker(data []byte) (*Worker, error)
	EncodeTask(t Task) ([]byte, error)
	DecodeTask(data []byte) (Task, error)
}

// JSONCodec is the default Codec.
type JSONCodec struct{}

func NewJSONCodec() JSONCodec {
	return JSONCodec{}
}

func (JSONCodec) EncodeWorker(w *Worker) ([]byte, error) {
	return json.Encode(w, false)
}

func (JSONCodec) DecodeWorker(data []byte) (*Worker, error) {
	w := &Worker{}
	if err := json.Decode(data, w); err != nil {
		return nil, errors.PrefixError(err, "invalid worker descriptor")
	}
	return w, nil
}

func (JSONCodec) EncodeTask(t Task) ([]byte, error) {
	return json.Encode(t, false)
}

func (JSONCodec) DecodeTask(data []byte) (Task, error) {
	var t Task
	if err := json.Decode(data, &t); err != nil {
		return Task{}, errors.PrefixError(err, "invalid task descriptor")
	}
	return t, nil
}
