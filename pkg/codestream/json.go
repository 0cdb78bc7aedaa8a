package codestream

import "encoding/json"

// MarshalJSON emits the marker name with its decoded body
func (s *Segment) MarshalJSON() ([]byte, error) {
	var errs []string
	for _, err := range s.Errors {
		errs = append(errs, err.Error())
	}
	return json.Marshal(&struct {
		Marker string   `json:"marker"`
		Code   uint16   `json:"code"`
		Offset int64    `json:"offset"`
		Length int      `json:"length"`
		Fields Body     `json:"fields,omitempty"`
		Data   int      `json:"data_bytes,omitempty"`
		Errors []string `json:"errors,omitempty"`
	}{
		Marker: s.Marker.String(),
		Code:   uint16(s.Marker),
		Offset: s.Offset,
		Length: s.Length,
		Fields: s.Body,
		Data:   len(s.Data),
		Errors: errs,
	})
}

// MarshalJSON emits the segments with the parse error as text
func (c *Codestream) MarshalJSON() ([]byte, error) {
	var errText string
	if c.Err != nil {
		errText = c.Err.Error()
	}
	return json.Marshal(&struct {
		Offset       int64      `json:"offset"`
		Length       int64      `json:"length"`
		HeaderOnly   bool       `json:"header_only"`
		HeaderLength int64      `json:"header_length"`
		Segments     []*Segment `json:"segments"`
		Error        string     `json:"error,omitempty"`
	}{
		Offset:       c.Offset,
		Length:       c.Length,
		HeaderOnly:   c.HeaderOnly,
		HeaderLength: c.HeaderLength,
		Segments:     c.Segments,
		Error:        errText,
	})
}
