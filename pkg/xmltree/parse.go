package xmltree

import (
	"fmt"
	"strings"
)

// SyntaxError reports a document the tree builder cannot nest.
type SyntaxError struct {
	Token string
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("xml syntax error at %q: %s", e.Token, e.Msg)
}

// Tokenize splits raw XML into tag tokens ("<...>") and the text runs between
// them. Carriage returns and line feeds are dropped.
func Tokenize(s string) []string {
	var (
		tokens    []string
		collected strings.Builder
	)
	flush := func() {
		if collected.Len() > 0 {
			tokens = append(tokens, collected.String())
			collected.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '\r', '\n':
			continue
		case '<':
			flush()
			collected.WriteByte(ch)
		case '>':
			collected.WriteByte(ch)
			flush()
		default:
			collected.WriteByte(ch)
		}
	}
	flush()

	return tokens
}

// Parse builds a tree from raw XML. Entity references in text and
// attribute values are kept as written, so text produced by Marshal comes
// back escaped; callers decode with Unescape where they need the value.
func Parse(s string) (*Node, error) {
	return build(Tokenize(s))
}

const whitespace = " \t\r\n"

type frame struct {
	key  Key
	node *Node
}

func build(tokens []string) (*Node, error) {
	var (
		doc   = NewNode()
		stack []frame
	)
	current := func() *Node {
		if len(stack) == 0 {
			return doc
		}
		return stack[len(stack)-1].node
	}

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		switch {
		case strings.HasPrefix(token, "<?"), strings.HasPrefix(token, "<!"):
			continue
		case strings.HasPrefix(token, "</"):
			if len(stack) == 0 {
				return nil, &SyntaxError{Token: token, Msg: "closing tag without an open element"}
			}
			name := strings.TrimSpace(token[2 : len(token)-1])
			top := stack[len(stack)-1]
			if name != top.key.Name {
				return nil, &SyntaxError{Token: token, Msg: fmt.Sprintf("expected </%s>", top.key.Name)}
			}
			stack = stack[:len(stack)-1]
		case strings.HasPrefix(token, "<"):
			if !strings.HasSuffix(token, ">") {
				return nil, &SyntaxError{Token: token, Msg: "unterminated tag"}
			}
			selfClosing := strings.HasSuffix(token, "/>")
			body := token[1 : len(token)-1]
			if selfClosing {
				body = token[1 : len(token)-2]
			}
			body = strings.TrimSpace(body)
			name, rawAttrs := body, ""
			if i := strings.IndexAny(body, whitespace); i >= 0 {
				name, rawAttrs = body[:i], body[i+1:]
			}
			if name == "" {
				return nil, &SyntaxError{Token: token, Msg: "empty tag name"}
			}

			parent := current()
			idx := parent.Count(name)
			if rawAttrs = strings.TrimSpace(rawAttrs); rawAttrs != "" {
				attrs, err := parseAttrs(rawAttrs)
				if err != nil {
					return nil, &SyntaxError{Token: token, Msg: err.Error()}
				}
				parent.Set(Key{Name: name + AttrsSuffix, Index: idx}, AttrsValue(attrs))
			}

			child := NewNode()
			key := Key{Name: name, Index: idx}
			parent.Set(key, NodeValue(child))
			if !selfClosing {
				stack = append(stack, frame{key: key, node: child})
			}
		default:
			if len(stack) == 0 {
				// text outside the document element
				continue
			}
			top := stack[len(stack)-1]
			parent := doc
			if len(stack) > 1 {
				parent = stack[len(stack)-2].node
			}
			if existing, ok := parent.Get(top.key.Name, top.key.Index); ok && existing.Kind() == KindText {
				token = existing.Text() + token
			}
			parent.Set(top.key, TextValue(token))
		}
	}

	if len(stack) != 0 {
		return nil, &SyntaxError{Token: "<" + stack[len(stack)-1].key.Name + ">", Msg: "element never closed"}
	}

	return doc, nil
}

func parseAttrs(raw string) (map[string]string, error) {
	attrs := make(map[string]string)
	for {
		raw = strings.TrimLeft(raw, whitespace)
		if raw == "" {
			return attrs, nil
		}
		name, rest, found := strings.Cut(raw, "=")
		if !found {
			// valueless attribute; nothing left worth keeping
			return attrs, nil
		}
		name = strings.TrimSpace(name)
		rest = strings.TrimLeft(rest, whitespace)
		if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
			return nil, fmt.Errorf("attribute %s: value is not quoted", name)
		}
		quote := rest[0]
		end := strings.IndexByte(rest[1:], quote)
		if end < 0 {
			return nil, fmt.Errorf("attribute %s: unterminated value", name)
		}
		attrs[name] = rest[1 : end+1]
		raw = rest[end+2:]
	}
}
