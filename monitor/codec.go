package monitor

import (
	"encoding/json"
	"fmt"
)

// jsonCodec lets Connect carry the plain Go message structs. Connect's
// built-in JSON codec only accepts protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("monitor: decode %T: %w", v, err)
	}
	return nil
}
