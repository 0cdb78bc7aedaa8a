package box

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jpfielding/jp2k.go/pkg/binio"
	"github.com/jpfielding/jp2k.go/pkg/jp2err"
	"github.com/jpfielding/jp2k.go/pkg/options"
)

// Element is one node of a parsed XML document. Names keep their prefixes
// as written.
type Element struct {
	Name     string
	Attr     []xml.Attr
	Text     string
	Children []*Element
}

// XML is the xml box payload. Text is the document as stored, minus any
// trailing NUL padding. Root is nil when the document does not parse.
type XML struct {
	Text      string
	Root      *Element `json:"-"`
	Err       error    `json:"-"`
	Recovered bool     `json:"-"` // bytes before the <?xml declaration were dropped
}

// NewXML builds an xml box around a document
func NewXML(text string) *Box {
	return New(TypeXML, ParseXML([]byte(text)))
}

// ParseXML decodes XML box bytes. It never fails; problems are kept in Err.
func ParseXML(raw []byte) *XML {
	x := &XML{}
	if !utf8.Valid(raw) {
		i := bytes.Index(raw, []byte("<?xml"))
		if i < 0 || !utf8.Valid(raw[i:]) {
			x.Text = strings.ToValidUTF8(string(raw), "�")
			x.Err = errors.New("xml box is not valid UTF-8")
			return x
		}
		raw = raw[i:]
		x.Recovered = true
	}
	x.Text = strings.TrimRight(string(raw), "\x00")
	x.Root, x.Err = parseElements(x.Text)
	return x
}

func decodeXML(c *binio.Cursor) (Payload, error) {
	raw, err := c.ReadRest()
	if err != nil {
		return nil, err
	}
	x := ParseXML(raw)
	if !x.Recovered && !utf8.Valid(raw) {
		return nil, x.Err
	}
	return x, nil
}

func parseElements(text string) (*Element, error) {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.Strict = true
	var (
		root  *Element
		stack []*Element
	)
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: qualified(t.Name)}
			for _, a := range t.Attr {
				el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: qualified(a.Name)}, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			} else if root == nil {
				root = el
			} else {
				return nil, fmt.Errorf("second root element <%s>", el.Name)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1].Name != qualified(t.Name) {
				return nil, fmt.Errorf("unexpected </%s>", qualified(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Name)
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Indent renders the element tree with two-space indentation
func (e *Element) Indent() string {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := e.encode(enc); err != nil {
		return err.Error()
	}
	if err := enc.Flush(); err != nil {
		return err.Error()
	}
	return buf.String()
}

func (e *Element) encode(enc *xml.Encoder) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}, Attr: e.Attr}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if text := strings.TrimSpace(e.Text); text != "" {
		if err := enc.EncodeToken(xml.CharData(text)); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.encode(enc); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Find returns the first descendant (or e itself) with the given local name
func (e *Element) Find(name string) *Element {
	if e == nil {
		return nil
	}
	if local(e.Name) == name {
		return e
	}
	for _, c := range e.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

func local(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (x *XML) MarshalBinary() ([]byte, error) {
	return []byte(x.Text), nil
}

func (x *XML) Describe(o options.Options) []string {
	if !o.PrintXML {
		return nil
	}
	if x.Root == nil {
		return []string{"None"}
	}
	return strings.Split(x.Root.Indent(), "\n")
}

func (x *XML) Validate() []error {
	var errs []error
	if x.Recovered {
		errs = append(errs, jp2err.Invalid("xml box had bytes before its <?xml declaration, the document was recovered"))
	}
	if x.Err != nil {
		errs = append(errs, jp2err.Invalid("xml box could not be parsed: %v", x.Err))
	}
	return errs
}
