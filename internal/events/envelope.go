package events

import (
	"encoding/json"
	"fmt"
)

// Encode builds the wire envelope for payload: the payload's JSON object
// fields plus a "topic" field. Payloads that are not JSON objects are
// placed under "data".
func Encode(topic string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		fields = map[string]json.RawMessage{"data": raw}
	}
	topicJSON, _ := json.Marshal(topic)
	fields["topic"] = topicJSON
	return json.Marshal(fields)
}

// Topic reads the topic of an encoded envelope.
func Topic(data []byte) (string, error) {
	var head struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("invalid envelope: %w", err)
	}
	if head.Topic == "" {
		return "", fmt.Errorf("envelope has no topic")
	}
	return head.Topic, nil
}

// DecodeMutation decodes a "mutations" envelope into its Event.
func DecodeMutation(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
