package wsclient

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// batchType marks a frame carrying queued sub-messages.
const batchType = "batch"

// directEnvelope is the wire shape of an unbatched client send.
// Direct sends carry "payload"; batched sub-messages carry "data".
// The asymmetry is part of the wire contract and must not be repaired.
type directEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// queuedMessage is one batched sub-message.
type queuedMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type batchEnvelope struct {
	Type     string          `json:"type"`
	Messages []queuedMessage `json:"messages"`
}

func encodeDirect(msgType string, payload any) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(directEnvelope{Type: msgType, Payload: payload})
}

func encodeImmediate(msgType string, data any) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(queuedMessage{Type: msgType, Data: data})
}

func encodeBatch(messages []queuedMessage) ([]byte, error) {
	return sonic.ConfigFastest.Marshal(batchEnvelope{Type: batchType, Messages: messages})
}

// Message is one parsed inbound frame.
type Message struct {
	// Type is the dispatch key, empty when the frame carried none.
	Type string
	// Payload is the raw JSON of the frame's payload field, nil when absent.
	Payload json.RawMessage
	// Raw is the full frame as received.
	Raw json.RawMessage
}

// Unmarshal decodes the payload into v, falling back to the full frame for
// messages without a payload field.
func (m Message) Unmarshal(v any) error {
	if len(m.Payload) != 0 {
		return sonic.ConfigFastest.Unmarshal(m.Payload, v)
	}
	return sonic.ConfigFastest.Unmarshal(m.Raw, v)
}

// decodeMessage parses an inbound frame. Any valid JSON document is accepted;
// type and payload are extracted only when the frame is an object carrying
// them.
func decodeMessage(raw []byte) (Message, error) {
	var probe any
	if err := sonic.ConfigFastest.Unmarshal(raw, &probe); err != nil {
		return Message{}, err
	}

	msg := Message{Raw: raw}
	var head struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := sonic.ConfigFastest.Unmarshal(raw, &head); err == nil {
		msg.Type = head.Type
		msg.Payload = head.Payload
	}
	return msg, nil
}
