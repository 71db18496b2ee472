package service

import (
	"encoding/json"
	"fmt"
)

// jsonCodec replaces connect's protojson codec so plain Go structs can be
// used as messages. It is registered under the same name, requests sent with
// Content-Type application/json are decoded by it.
type jsonCodec struct{}

// jsonCharsetCodec serves application/json; charset=utf-8, which connect
// otherwise hands to its protojson codec.
type jsonCharsetCodec struct {
	jsonCodec
}

func (jsonCharsetCodec) Name() string {
	return "json; charset=utf-8"
}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	// connect hands an empty body to unary requests without fields
	if len(data) == 0 {
		return nil
	}
	err := json.Unmarshal(data, msg)
	if err != nil {
		return fmt.Errorf("decode %T: %w", msg, err)
	}
	return nil
}
