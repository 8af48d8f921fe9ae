package protocol

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// codecJSON is the JSON implementation used for all wire
// serialization. ConfigCompatibleWithStandardLibrary keeps struct-field
// ordering identical to encoding/json, which matters: the payload bytes a
// peer signs must be byte-for-byte the ones the other peer verifies.
var codecJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame is the wire unit: one JSON object per websocket message. Payload is
// kept as raw bytes so the verifier runs over exactly what was received,
// never over a re-serialization.
type Frame struct {
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// EncodeFrame serializes a frame for transmission.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := codecJSON.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a received websocket message into a Frame. Malformed
// input is an error for the caller to log and drop, never to propagate.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := codecJSON.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if len(f.Payload) == 0 {
		return Frame{}, fmt.Errorf("protocol: frame has no payload")
	}
	return f, nil
}

// EncodeCommand produces the canonical payload bytes for a command. Struct
// fields marshal in declared order, so both peers serialize identically.
func EncodeCommand(cmd Command) ([]byte, error) {
	data, err := codecJSON.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode command %q: %w", cmd.Cmd, err)
	}
	return data, nil
}

// DecodeCommand parses verified payload bytes into a Command.
func DecodeCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := codecJSON.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("protocol: decode command: %w", err)
	}
	if cmd.Cmd == "" {
		return Command{}, fmt.Errorf("protocol: command payload has no cmd tag")
	}
	return cmd, nil
}

// EncodeResult produces the canonical payload bytes for a result.
func EncodeResult(res Result) ([]byte, error) {
	data, err := codecJSON.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode result %q: %w", res.Resource, err)
	}
	return data, nil
}

// DecodeResult parses verified payload bytes into a Result.
func DecodeResult(payload []byte) (Result, error) {
	var res Result
	if err := codecJSON.Unmarshal(payload, &res); err != nil {
		return Result{}, fmt.Errorf("protocol: decode result: %w", err)
	}
	if res.Resource == "" {
		return Result{}, fmt.Errorf("protocol: result payload has no resource tag")
	}
	return res, nil
}
