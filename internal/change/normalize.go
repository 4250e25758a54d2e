package change

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText removes serialization artifacts from plain text:
// CRLF and CR line endings become LF, trailing newlines are dropped,
// and the result is NFC normalized.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimRight(s, "\n")
	return norm.NFC.String(s)
}

// NormalizeXML returns a canonical rendering of an XML document.
//
// The canonical form:
//   - drops the <?xml ...?> declaration
//   - sorts attributes by prefix then local name
//   - renders <a/> and <a></a> identically
//   - re-escapes character data, so entity spelling does not matter
//   - drops indentation: whitespace-only text that spans lines in
//     element-only content
//   - NFC normalizes text and attribute values
//
// Other whitespace-only text separates inline elements and is kept, as is
// all whitespace inside mixed content or under xml:space="preserve".
// Prefixes are kept as written; namespace URIs are not resolved.
func NormalizeXML(s string) (string, error) {
	toks, mixed, err := readXML(s)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	var preserve []bool
	var parents []int
	for i, tok := range toks {
		switch t := tok.(type) {
		case xml.StartElement:
			p := len(preserve) > 0 && preserve[len(preserve)-1]
			for _, a := range t.Attr {
				if a.Name.Space == "xml" && a.Name.Local == "space" {
					p = a.Value == "preserve"
				}
			}
			preserve = append(preserve, p)
			parents = append(parents, i)
			writeStart(&buf, t)
		case xml.EndElement:
			preserve = preserve[:len(preserve)-1]
			parents = parents[:len(parents)-1]
			buf.WriteString("</")
			buf.WriteString(qname(t.Name))
			buf.WriteByte('>')
		case xml.CharData:
			if len(parents) == 0 {
				continue
			}
			if isIndent(t) && !mixed[parents[len(parents)-1]] && !preserve[len(preserve)-1] {
				continue
			}
			_ = xml.EscapeText(&buf, []byte(norm.NFC.String(string(t))))
		case xml.Comment:
			buf.WriteString("<!--")
			buf.Write(t)
			buf.WriteString("-->")
		case xml.ProcInst:
			if t.Target == "xml" {
				continue
			}
			buf.WriteString("<?")
			buf.WriteString(t.Target)
			if inst := strings.TrimSpace(string(t.Inst)); inst != "" {
				buf.WriteByte(' ')
				buf.WriteString(inst)
			}
			buf.WriteString("?>")
		case xml.Directive:
			buf.WriteString("<!")
			buf.WriteString(strings.Join(strings.Fields(string(t)), " "))
			buf.WriteByte('>')
		}
	}
	return buf.String(), nil
}

// readXML tokenizes s and checks that it is one balanced element tree.
// mixed holds the token index of every start element that has
// non-whitespace text among its direct children.
func readXML(s string) ([]xml.Token, map[int]bool, error) {
	dec := xml.NewDecoder(strings.NewReader(s))
	dec.Strict = true

	var toks []xml.Token
	var open []int
	mixed := make(map[int]bool)
	sawElement := false
	for {
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("normalize xml: %w", err)
		}
		tok = xml.CopyToken(tok)

		switch t := tok.(type) {
		case xml.StartElement:
			if sawElement && len(open) == 0 {
				return nil, nil, errors.New("normalize xml: more than one root element")
			}
			sawElement = true
			open = append(open, len(toks))
		case xml.EndElement:
			if len(open) == 0 || toks[open[len(open)-1]].(xml.StartElement).Name != t.Name {
				return nil, nil, fmt.Errorf("normalize xml: unexpected </%s>", qname(t.Name))
			}
			open = open[:len(open)-1]
		case xml.CharData:
			if isSpace(t) {
				break
			}
			if len(open) == 0 {
				return nil, nil, errors.New("normalize xml: text outside root element")
			}
			mixed[open[len(open)-1]] = true
		}
		toks = append(toks, tok)
	}
	if !sawElement {
		return nil, nil, errors.New("normalize xml: no root element")
	}
	if len(open) != 0 {
		return nil, nil, errors.New("normalize xml: unbalanced elements")
	}
	return toks, mixed, nil
}

func isSpace(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

func isIndent(b []byte) bool {
	return isSpace(b) && bytes.ContainsAny(b, "\n\r")
}

func writeStart(buf *bytes.Buffer, t xml.StartElement) {
	attrs := make([]xml.Attr, len(t.Attr))
	copy(attrs, t.Attr)
	sort.Slice(attrs, func(i, j int) bool {
		if attrs[i].Name.Space != attrs[j].Name.Space {
			return attrs[i].Name.Space < attrs[j].Name.Space
		}
		return attrs[i].Name.Local < attrs[j].Name.Local
	})

	buf.WriteByte('<')
	buf.WriteString(qname(t.Name))
	for _, a := range attrs {
		buf.WriteByte(' ')
		buf.WriteString(qname(a.Name))
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(norm.NFC.String(a.Value)))
		buf.WriteByte('"')
	}
	buf.WriteByte('>')
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// looksLikeXML is a cheap pre-check so plain text never pays for a parse.
func looksLikeXML(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "<")
}
