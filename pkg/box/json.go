package box

import "encoding/json"

// MarshalJSON emits the box header, its decoded fields and its children
func (b *Box) MarshalJSON() ([]byte, error) {
	var errText string
	if b.Err != nil {
		errText = b.Err.Error()
	}
	var warnings []string
	for _, w := range b.Warnings {
		warnings = append(warnings, w.Error())
	}
	length := b.Length
	if length == 0 {
		length, _ = Size(b)
	}
	return json.Marshal(&struct {
		Type     Type     `json:"type"`
		Name     string   `json:"name"`
		Offset   int64    `json:"offset"`
		Length   int64    `json:"length"`
		ToEnd    bool     `json:"to_end,omitempty"`
		Error    string   `json:"error,omitempty"`
		Warnings []string `json:"warnings,omitempty"`
		Fields   Payload  `json:"fields,omitempty"`
		Children []*Box   `json:"children,omitempty"`
	}{
		Type:     b.Type,
		Name:     b.Name(),
		Offset:   b.Offset,
		Length:   length,
		ToEnd:    b.ToEnd,
		Error:    errText,
		Warnings: warnings,
		Fields:   b.Payload,
		Children: b.Children,
	})
}
