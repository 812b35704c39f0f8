package iteration

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Contribution is one expert's text in the collaborative ideation stage.
type Contribution struct {
	Expert string
	Text   string
}

// Contributions is an insertion-ordered expert → text mapping. It encodes
// as a JSON object whose keys keep their order.
type Contributions []Contribution

// Get returns the text for expert.
func (c Contributions) Get(expert string) (string, bool) {
	for _, x := range c {
		if x.Expert == expert {
			return x.Text, true
		}
	}
	return "", false
}

// Set replaces an existing entry or appends a new one.
func (c Contributions) Set(expert, text string) Contributions {
	for i := range c {
		if c[i].Expert == expert {
			c[i].Text = text
			return c
		}
	}
	return append(c, Contribution{Expert: expert, Text: text})
}

// Keys returns the expert names in order.
func (c Contributions) Keys() []string {
	keys := make([]string, len(c))
	for i, x := range c {
		keys[i] = x.Expert
	}
	return keys
}

// Render concatenates contributions as "**expert**:\ntext" blocks separated
// by blank lines.
func (c Contributions) Render() string {
	var buf bytes.Buffer
	for i, x := range c {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		fmt.Fprintf(&buf, "**%s**:\n%s", x.Expert, x.Text)
	}
	return buf.String()
}

// MarshalJSON encodes the contributions as an ordered JSON object.
func (c Contributions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, x := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(x.Expert)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(x.Text)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping document key order.
func (c *Contributions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("contributions: expected object, got %v", tok)
	}
	out := Contributions{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("contributions: expected string key, got %v", keyTok)
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return fmt.Errorf("contributions: value for %q: %w", key, err)
		}
		out = out.Set(key, text)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// Clone returns a copy that shares no backing array with c.
func (c Contributions) Clone() Contributions {
	if c == nil {
		return nil
	}
	return append(Contributions{}, c...)
}
