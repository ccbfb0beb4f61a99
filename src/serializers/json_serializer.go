package serializers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"resilient-feed/src/interfaces"
)

// -----------------------------------------------------------------------------

// JSONSerializer implements interfaces.ISerializer on top of encoding/json.
type JSONSerializer struct {
	indent string
	strict bool
}

// -----------------------------------------------------------------------------

// NewJSONSerializer returns the compact serializer used on the wire.
func NewJSONSerializer() interfaces.ISerializer {
	return &JSONSerializer{}
}

// NewIndentedJSONSerializer returns a serializer for human facing output.
func NewIndentedJSONSerializer() interfaces.ISerializer {
	return &JSONSerializer{indent: "  "}
}

// NewStrictJSONSerializer rejects unknown fields on Unmarshal.
func NewStrictJSONSerializer() interfaces.ISerializer {
	return &JSONSerializer{strict: true}
}

// -----------------------------------------------------------------------------

// Marshal converts the object to a JSON byte array.
func (j *JSONSerializer) Marshal(obj any) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if j.indent != "" {
		data, err = json.MarshalIndent(obj, "", j.indent)
	} else {
		data, err = json.Marshal(obj)
	}
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return data, nil
}

// -----------------------------------------------------------------------------

// Unmarshal converts a JSON byte array back into the target object.
func (j *JSONSerializer) Unmarshal(data []byte, obj any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	if j.strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(obj); err != nil {
		return fmt.Errorf("json unmarshal error: %w", err)
	}
	return nil
}
