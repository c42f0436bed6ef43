package uitree

import (
	"fmt"
	"strings"
)

// Selector is a parsed, matchable form of the selector subset the engine
// uses. The subset is deliberately small: comma-separated compounds, each an
// optional tag plus any number of #id, .class and [attr], [attr="v"],
// [attr*="v"], [attr^="v"] parts. No combinators; scoping is expressed by
// calling Query on an element instead.
type Selector struct {
	raw       string
	compounds []compound
}

type compound struct {
	tag   string
	attrs []attrTest
}

type attrTest struct {
	name string
	op   byte // 0 presence, '=' exact, '*' contains, '^' prefix, 'c' class, 'i' id
	val  string
}

// ParseSelector parses the supported selector subset.
func ParseSelector(s string) (*Selector, error) {
	sel := &Selector{raw: s}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseCompound(part)
		if err != nil {
			return nil, err
		}
		sel.compounds = append(sel.compounds, c)
	}
	if len(sel.compounds) == 0 {
		return nil, fmt.Errorf("empty selector %q", s)
	}
	return sel, nil
}

func parseCompound(s string) (compound, error) {
	var c compound
	i := 0
	// Leading tag name, if any.
	for i < len(s) && s[i] != '#' && s[i] != '.' && s[i] != '[' {
		i++
	}
	c.tag = strings.ToLower(s[:i])
	if c.tag == "*" {
		c.tag = ""
	}
	if !validTag(c.tag) {
		return c, fmt.Errorf("unsupported selector syntax in %q", s)
	}
	for i < len(s) {
		switch s[i] {
		case '#':
			j := i + 1
			for j < len(s) && s[j] != '#' && s[j] != '.' && s[j] != '[' {
				j++
			}
			c.attrs = append(c.attrs, attrTest{name: "id", op: 'i', val: s[i+1 : j]})
			i = j
		case '.':
			j := i + 1
			for j < len(s) && s[j] != '#' && s[j] != '.' && s[j] != '[' {
				j++
			}
			c.attrs = append(c.attrs, attrTest{name: "class", op: 'c', val: s[i+1 : j]})
			i = j
		case '[':
			j := strings.IndexByte(s[i:], ']')
			if j < 0 {
				return c, fmt.Errorf("unterminated attribute test in %q", s)
			}
			body := s[i+1 : i+j]
			c.attrs = append(c.attrs, parseAttrTest(body))
			i += j + 1
		default:
			return c, fmt.Errorf("unexpected %q in selector %q", s[i], s)
		}
	}
	return c, nil
}

func parseAttrTest(body string) attrTest {
	for _, op := range []string{"*=", "^=", "="} {
		if k := strings.Index(body, op); k >= 0 {
			val := strings.Trim(body[k+len(op):], `"'`)
			t := attrTest{name: strings.TrimSpace(body[:k]), val: val}
			switch op {
			case "*=":
				t.op = '*'
			case "^=":
				t.op = '^'
			default:
				t.op = '='
			}
			return t
		}
	}
	return attrTest{name: strings.TrimSpace(body)}
}

// Matches reports whether an element with the given tag and attribute lookup
// satisfies the selector.
func (s *Selector) Matches(tag string, attr func(string) string) bool {
	for _, c := range s.compounds {
		if c.matches(tag, attr) {
			return true
		}
	}
	return false
}

func (c compound) matches(tag string, attr func(string) string) bool {
	if c.tag != "" && c.tag != strings.ToLower(tag) {
		return false
	}
	for _, t := range c.attrs {
		got := attr(t.name)
		switch t.op {
		case 0:
			if got == "" {
				return false
			}
		case '=':
			if got != t.val {
				return false
			}
		case '*':
			if !strings.Contains(got, t.val) {
				return false
			}
		case '^':
			if !strings.HasPrefix(got, t.val) {
				return false
			}
		case 'i':
			if got != t.val {
				return false
			}
		case 'c':
			if !hasClassToken(got, t.val) {
				return false
			}
		}
	}
	return true
}

// validTag accepts plain element names only; combinators and pseudo-classes
// are outside the subset.
func validTag(tag string) bool {
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

func hasClassToken(classAttr, want string) bool {
	for _, f := range strings.Fields(classAttr) {
		if f == want {
			return true
		}
	}
	return false
}

// String returns the original selector text.
func (s *Selector) String() string { return s.raw }
