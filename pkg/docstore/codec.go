package docstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("docstore: encode: document must be a JSON object")
	}
	return data, nil
}

func decode(ref Ref, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, ref.Path(), err)
	}
	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			// dst is not a struct (e.g. a map); nothing to validate.
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrMalformed, ref.Path(), err)
	}
	return nil
}

// mergeJSON overlays the top-level fields of patch onto base.
func mergeJSON(base, patch []byte) ([]byte, error) {
	if len(base) == 0 {
		return patch, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, fmt.Errorf("docstore: merge base: %w", err)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("docstore: merge patch: %w", err)
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, len(overlay))
	}
	for k, v := range overlay {
		fields[k] = v
	}
	return json.Marshal(fields)
}
