package models

import (
	"bytes"
	"encoding/json"
)

// PromptPlaceholder is shown while the server has not sent a usable prompt.
const PromptPlaceholder = "Waiting for prompt..."

// Prompt is the round prompt. The backend sends it either as a bare string or
// as an object carrying a text field.
type Prompt struct {
	Text string
}

// Display returns the prompt text or the placeholder when it is blank.
func (p Prompt) Display() string {
	if p.Text == "" {
		return PromptPlaceholder
	}
	return p.Text
}

// UnmarshalJSON never fails: anything that is not a string or an object with
// a string "text" field decodes to an empty prompt.
func (p *Prompt) UnmarshalJSON(data []byte) error {
	p.Text = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			p.Text = s
		}
	case '{':
		var obj struct {
			Text json.RawMessage `json:"text"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		var s string
		if err := json.Unmarshal(obj.Text, &s); err == nil {
			p.Text = s
		}
	}
	return nil
}

// MarshalJSON writes the prompt as a plain string.
func (p Prompt) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Text)
}
