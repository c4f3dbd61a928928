package tools

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// normalizer is implemented by argument structs that clean up input before validation
type normalizer interface {
	normalize()
}

// decodeArgs unmarshals tool input into dst, normalizes it and validates its struct tags
func decodeArgs(input json.RawMessage, dst interface{}) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid tool arguments: %w", err)
	}
	return nil
}
