package airtabletest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/devrev/tablegateway/internal/model"
)

// condition is one {field}='value' comparison.
type condition struct {
	field string
	value string
}

// parseFormula parses the subset of formulas the gateway produces: a single
// {field}='value' comparison or AND(...) over several of them.
func parseFormula(formula string) ([]condition, error) {
	p := &formulaParser{src: strings.TrimSpace(formula)}
	if p.src == "" {
		return nil, nil
	}

	var conds []condition
	if strings.HasPrefix(strings.ToUpper(p.src), "AND(") {
		p.pos = len("AND(")
		for {
			p.skipSpace()
			if p.peek() == ')' && len(conds) == 0 {
				p.pos++
				break
			}
			c, err := p.comparison()
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
			p.skipSpace()
			switch p.peek() {
			case ',':
				p.pos++
				continue
			case ')':
				p.pos++
			default:
				return nil, p.errorf("expected ',' or ')'")
			}
			break
		}
	} else {
		c, err := p.comparison()
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}

	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return conds, nil
}

type formulaParser struct {
	src string
	pos int
}

func (p *formulaParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *formulaParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *formulaParser) errorf(format string, args ...any) error {
	return fmt.Errorf("invalid formula at position %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *formulaParser) comparison() (condition, error) {
	p.skipSpace()
	if p.peek() != '{' {
		return condition{}, p.errorf("expected '{'")
	}
	end := strings.IndexByte(p.src[p.pos:], '}')
	if end < 0 {
		return condition{}, p.errorf("unterminated field reference")
	}
	field := p.src[p.pos+1 : p.pos+end]
	p.pos += end + 1

	p.skipSpace()
	if p.peek() != '=' {
		return condition{}, p.errorf("expected '='")
	}
	p.pos++
	p.skipSpace()

	quote := p.peek()
	if quote != '\'' && quote != '"' {
		return condition{}, p.errorf("expected string literal")
	}
	p.pos++

	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return condition{}, p.errorf("unterminated string literal")
		}
		ch := p.src[p.pos]
		p.pos++
		switch {
		case ch == '\\' && p.pos < len(p.src):
			b.WriteByte(p.src[p.pos])
			p.pos++
		case ch == quote:
			return condition{field: field, value: b.String()}, nil
		default:
			b.WriteByte(ch)
		}
	}
}

// matches reports whether rec satisfies every condition.
func matches(rec model.Record, conds []condition) bool {
	for _, c := range conds {
		if cellText(rec.Fields[c.field]) != c.value {
			return false
		}
	}
	return true
}

// cellText renders a field value the way a string comparison sees it.
func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = cellText(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}
