package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// ParseList turns a list-valued metadata field into its elements.
// JSON arrays and PHP-serialized arrays keep their elements as-is; anything
// else is split on commas. Elements are cleaned and empties dropped.
func ParseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if items, ok := parseStructuredList(raw); ok {
		return cleanElements(items)
	}
	return cleanElements(strings.Split(raw, ","))
}

func parseStructuredList(raw string) ([]string, bool) {
	switch {
	case strings.HasPrefix(raw, "["):
		var values []any
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, false
		}
		items := make([]string, 0, len(values))
		for _, v := range values {
			switch t := v.(type) {
			case string:
				items = append(items, t)
			case float64:
				items = append(items, strconv.FormatFloat(t, 'f', -1, 64))
			case bool:
				items = append(items, strconv.FormatBool(t))
			}
		}
		return items, true

	case strings.HasPrefix(raw, "a:"):
		items, err := unserializePHPArray(raw)
		if err != nil {
			return nil, false
		}
		return items, true
	}
	return nil, false
}

func cleanElements(items []string) []string {
	var out []string
	for _, item := range items {
		if cleaned := CleanText(item); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// MergeUnique concatenates lists keeping first occurrences, comparing case-insensitively.
func MergeUnique(lists ...[]string) []string {
	fold := cases.Fold()
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, item := range list {
			key := fold.String(item)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// unserializePHPArray decodes the values of a flat PHP serialize() array,
// e.g. a:2:{i:0;s:3:"2D";i:1;s:7:"Rigging";}, as WordPress stores checkbox fields.
func unserializePHPArray(raw string) ([]string, error) {
	p := &phpParser{src: raw}

	if err := p.expect("a:"); err != nil {
		return nil, err
	}
	count, err := p.readInt(':')
	if err != nil {
		return nil, err
	}
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	// every element takes at least eight bytes ("i:0;i:0;")
	if count < 0 || count > (len(p.src)-p.pos)/8 {
		return nil, fmt.Errorf("php unserialize: element count %d out of range", count)
	}

	var items []string
	for range count {
		// key, discarded
		if _, err := p.readScalar(); err != nil {
			return nil, err
		}
		value, err := p.readScalar()
		if err != nil {
			return nil, err
		}
		items = append(items, value)
	}

	if err := p.expect("}"); err != nil {
		return nil, err
	}
	return items, nil
}

type phpParser struct {
	src string
	pos int
}

func (p *phpParser) expect(token string) error {
	if !strings.HasPrefix(p.src[p.pos:], token) {
		return fmt.Errorf("php unserialize: expected %q at offset %d", token, p.pos)
	}
	p.pos += len(token)
	return nil
}

func (p *phpParser) readInt(terminator byte) (int, error) {
	end := strings.IndexByte(p.src[p.pos:], terminator)
	if end < 0 {
		return 0, fmt.Errorf("php unserialize: unterminated integer at offset %d", p.pos)
	}
	n, err := strconv.Atoi(p.src[p.pos : p.pos+end])
	if err != nil {
		return 0, fmt.Errorf("php unserialize: %w", err)
	}
	p.pos += end + 1
	return n, nil
}

// readScalar reads one s:, i:, d: or b: value and returns it as a string.
func (p *phpParser) readScalar() (string, error) {
	if p.pos+2 > len(p.src) {
		return "", fmt.Errorf("php unserialize: unexpected end of input")
	}
	kind := p.src[p.pos]
	p.pos += 2 // kind and ':'

	switch kind {
	case 's':
		length, err := p.readInt(':')
		if err != nil {
			return "", err
		}
		if err := p.expect(`"`); err != nil {
			return "", err
		}
		if length < 0 || p.pos+length > len(p.src) {
			return "", fmt.Errorf("php unserialize: string length %d out of range", length)
		}
		value := p.src[p.pos : p.pos+length]
		p.pos += length
		if err := p.expect(`";`); err != nil {
			return "", err
		}
		return value, nil

	case 'i', 'd', 'b':
		end := strings.IndexByte(p.src[p.pos:], ';')
		if end < 0 {
			return "", fmt.Errorf("php unserialize: unterminated scalar at offset %d", p.pos)
		}
		value := p.src[p.pos : p.pos+end]
		p.pos += end + 1
		return value, nil
	}
	return "", fmt.Errorf("php unserialize: unsupported type %q", kind)
}
