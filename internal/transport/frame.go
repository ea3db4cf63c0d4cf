package transport

import (
	"encoding/json"
	"fmt"
)

// Frame types exchanged with the messaging endpoint.
const (
	FrameConnect     = "CONNECT"
	FrameConnected   = "CONNECTED"
	FrameError       = "ERROR"
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FrameSend        = "SEND"
	FrameMessage     = "MESSAGE"
	FramePing        = "PING"
	FramePong        = "PONG"
)

// Frame is the wire envelope for the messaging endpoint. Inbound MESSAGE
// frames carry a room-scoped destination and a JSON body; outbound SEND
// frames carry the bearer token in headers.
type Frame struct {
	Type        string            `json:"type"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// DecodeFrame parses a raw websocket payload into a Frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("decode frame: missing type")
	}
	return f, nil
}

func encodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}
