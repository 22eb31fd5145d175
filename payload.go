package resq

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/roadrunner-server/errors"
)

// Payload is the persisted wire shape of one queued job attempt. It is
// data received from the store and must round-trip exactly, other clients
// of the same store read and write the identical JSON shape.
type Payload struct {
	// Class is the handler identifier resolved by the Factory.
	Class string `json:"class"`

	// Args holds the job arguments as a single-element array whose one
	// element is the args record. The nesting is kept for compatibility
	// with the other clients of the store.
	Args []map[string]any `json:"args"`

	// ID is the opaque unique identifier of this queued attempt. Requeuing
	// always produces a fresh one, never reuses the old.
	ID string `json:"id"`

	// QueueTime is the creation timestamp, seconds with sub-second
	// precision.
	QueueTime float64 `json:"queue_time"`
}

func (p *Payload) encode() ([]byte, error) {
	const op = errors.Op("payload_encode")

	data, err := json.Marshal(p)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return data, nil
}

func decodePayload(data []byte) (*Payload, error) {
	const op = errors.Op("payload_decode")

	p := new(Payload)
	err := json.Unmarshal(data, p)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return p, nil
}

// normalizeArgs validates that args is absent or a structured record and
// returns it as the map stored in the payload. Structs go through one JSON
// round trip so the stored shape is what a reserve would see anyway.
func normalizeArgs(args any) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}

	if m, ok := args.(map[string]any); ok {
		return m, nil
	}

	rv := reflect.ValueOf(args)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map, reflect.Struct:
		data, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidArgs, err)
		}

		out := make(map[string]any)
		err = json.Unmarshal(data, &out)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidArgs, err)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w, got %T", ErrInvalidArgs, args)
	}
}
