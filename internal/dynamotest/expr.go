package dynamotest

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type item = map[string]types.AttributeValue

// token kinds
const (
	tkEOF = iota
	tkIdent
	tkName
	tkValue
	tkPunct
)

type token struct {
	kind int
	text string
}

func tokenize(expr string) ([]token, error) {
	var toks []token
	rs := []rune(expr)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '#' || r == ':' || r == '_' || unicode.IsLetter(r):
			j := i + 1
			for j < len(rs) && (rs[j] == '_' || unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j])) {
				j++
			}
			kind := tkIdent
			if r == '#' {
				kind = tkName
			} else if r == ':' {
				kind = tkValue
			}
			toks = append(toks, token{kind: kind, text: string(rs[i:j])})
			i = j
		case strings.ContainsRune("(),=+-", r):
			toks = append(toks, token{kind: tkPunct, text: string(r)})
			i++
		case r == '<' || r == '>':
			op := string(r)
			if i+1 < len(rs) && (rs[i+1] == '=' || (r == '<' && rs[i+1] == '>')) {
				op += string(rs[i+1])
				i++
			}
			toks = append(toks, token{kind: tkPunct, text: op})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q in %q", r, expr)
		}
	}
	return append(toks, token{kind: tkEOF}), nil
}

// parser evaluates expressions against a document as it parses them.
type parser struct {
	toks   []token
	pos    int
	names  map[string]string
	values map[string]types.AttributeValue
	doc    item
}

func newParser(expr string, names map[string]string, values map[string]types.AttributeValue, doc item) (*parser, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	return &parser{toks: toks, names: names, values: values, doc: doc}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tkEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(word string) bool {
	t := p.peek()
	if t.kind == tkIdent && strings.EqualFold(t.text, word) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) punct(s string) bool {
	t := p.peek()
	if t.kind == tkPunct && t.text == s {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(s string) error {
	if !p.punct(s) {
		return fmt.Errorf("expected %q, got %q", s, p.peek().text)
	}
	return nil
}

func (p *parser) path() (string, error) {
	t := p.next()
	switch t.kind {
	case tkName:
		name, ok := p.names[t.text]
		if !ok {
			return "", fmt.Errorf("undefined attribute name %s", t.text)
		}
		return name, nil
	case tkIdent:
		return t.text, nil
	}
	return "", fmt.Errorf("expected attribute path, got %q", t.text)
}

// operand returns the value of a placeholder or a document attribute (nil if absent).
func (p *parser) operand() (types.AttributeValue, error) {
	t := p.peek()
	if t.kind == tkValue {
		p.pos++
		v, ok := p.values[t.text]
		if !ok {
			return nil, fmt.Errorf("undefined attribute value %s", t.text)
		}
		return v, nil
	}
	if t.kind == tkIdent && strings.EqualFold(t.text, "if_not_exists") {
		p.pos++
		if err := p.expect("("); err != nil {
			return nil, err
		}
		attr, err := p.path()
		if err != nil {
			return nil, err
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
		fallback, err := p.operand()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		if v, ok := p.doc[attr]; ok {
			return v, nil
		}
		return fallback, nil
	}
	attr, err := p.path()
	if err != nil {
		return nil, err
	}
	return p.doc[attr], nil
}

// condition := and { OR and }
func (p *parser) condition() (bool, error) {
	res, err := p.and()
	if err != nil {
		return false, err
	}
	for p.keyword("OR") {
		rhs, err := p.and()
		if err != nil {
			return false, err
		}
		res = res || rhs
	}
	return res, nil
}

func (p *parser) and() (bool, error) {
	res, err := p.unary()
	if err != nil {
		return false, err
	}
	for p.keyword("AND") {
		rhs, err := p.unary()
		if err != nil {
			return false, err
		}
		res = res && rhs
	}
	return res, nil
}

func (p *parser) unary() (bool, error) {
	if p.keyword("NOT") {
		v, err := p.unary()
		return !v, err
	}
	if p.punct("(") {
		v, err := p.condition()
		if err != nil {
			return false, err
		}
		return v, p.expect(")")
	}
	t := p.peek()
	if t.kind == tkIdent {
		switch strings.ToLower(t.text) {
		case "attribute_exists", "attribute_not_exists":
			p.pos++
			if err := p.expect("("); err != nil {
				return false, err
			}
			attr, err := p.path()
			if err != nil {
				return false, err
			}
			if err := p.expect(")"); err != nil {
				return false, err
			}
			_, exists := p.doc[attr]
			if strings.EqualFold(t.text, "attribute_exists") {
				return exists, nil
			}
			return !exists, nil
		case "begins_with":
			p.pos++
			if err := p.expect("("); err != nil {
				return false, err
			}
			lhs, err := p.operand()
			if err != nil {
				return false, err
			}
			if err := p.expect(","); err != nil {
				return false, err
			}
			rhs, err := p.operand()
			if err != nil {
				return false, err
			}
			if err := p.expect(")"); err != nil {
				return false, err
			}
			ls, lok := lhs.(*types.AttributeValueMemberS)
			rs, rok := rhs.(*types.AttributeValueMemberS)
			return lok && rok && strings.HasPrefix(ls.Value, rs.Value), nil
		}
	}

	lhs, err := p.operand()
	if err != nil {
		return false, err
	}
	op := p.next()
	if op.kind != tkPunct {
		return false, fmt.Errorf("expected comparator, got %q", op.text)
	}
	rhs, err := p.operand()
	if err != nil {
		return false, err
	}
	if lhs == nil || rhs == nil {
		return false, nil
	}
	switch op.text {
	case "=":
		return equal(lhs, rhs), nil
	case "<>":
		return !equal(lhs, rhs), nil
	}
	c, ok := compare(lhs, rhs)
	if !ok {
		return false, nil
	}
	switch op.text {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown comparator %q", op.text)
}

func evalCondition(expr *string, names map[string]string, values map[string]types.AttributeValue, doc item) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	p, err := newParser(*expr, names, values, doc)
	if err != nil {
		return false, err
	}
	ok, err := p.condition()
	if err != nil {
		return false, err
	}
	if p.peek().kind != tkEOF {
		return false, fmt.Errorf("trailing input %q in condition", p.peek().text)
	}
	return ok, nil
}

// applyUpdate evaluates an update expression against old and returns the new
// document. Every operand is read from the document as it was before the update.
func applyUpdate(old, key item, expr string, names map[string]string, values map[string]types.AttributeValue) (item, error) {
	base := copyItem(old)
	if base == nil {
		base = item{}
	}
	for k, v := range key {
		base[k] = copyValue(v)
	}
	next := copyItem(base)

	p, err := newParser(expr, names, values, base)
	if err != nil {
		return nil, err
	}
	for p.peek().kind != tkEOF {
		switch {
		case p.keyword("SET"):
			for {
				attr, err := p.path()
				if err != nil {
					return nil, err
				}
				if _, isKey := key[attr]; isKey {
					return nil, fmt.Errorf("cannot update key attribute %s", attr)
				}
				if err := p.expect("="); err != nil {
					return nil, err
				}
				v, err := p.arith()
				if err != nil {
					return nil, err
				}
				next[attr] = copyValue(v)
				if !p.punct(",") {
					break
				}
			}
		case p.keyword("REMOVE"):
			for {
				attr, err := p.path()
				if err != nil {
					return nil, err
				}
				delete(next, attr)
				if !p.punct(",") {
					break
				}
			}
		default:
			return nil, fmt.Errorf("unsupported update clause at %q", p.peek().text)
		}
	}
	return next, nil
}

func (p *parser) arith() (types.AttributeValue, error) {
	lhs, err := p.operand()
	if err != nil {
		return nil, err
	}
	sign := 0
	if p.punct("+") {
		sign = 1
	} else if p.punct("-") {
		sign = -1
	}
	if sign == 0 {
		if lhs == nil {
			return nil, fmt.Errorf("operand refers to a missing attribute")
		}
		return lhs, nil
	}
	rhs, err := p.operand()
	if err != nil {
		return nil, err
	}
	a, aok := number(lhs)
	b, bok := number(rhs)
	if !aok || !bok {
		return nil, fmt.Errorf("arithmetic on non-numeric operands")
	}
	if sign > 0 {
		a.Add(a, b)
	} else {
		a.Sub(a, b)
	}
	return &types.AttributeValueMemberN{Value: a.RatString()}, nil
}

func number(v types.AttributeValue) (*big.Rat, bool) {
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(n.Value)
	return r, ok
}

func compare(a, b types.AttributeValue) (int, bool) {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		an, aok := number(a)
		bn, bok := number(b)
		if !aok || !bok {
			return 0, false
		}
		return an.Cmp(bn), true
	}
	return 0, false
}

func equal(a, b types.AttributeValue) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

func copyItem(in item) item {
	if in == nil {
		return nil
	}
	out := make(item, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v types.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: tv.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: tv.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: tv.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: tv.Value}
	case *types.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: append([]byte(nil), tv.Value...)}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), tv.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), tv.Value...)}
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: copyItem(tv.Value)}
	case *types.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			l[i] = copyValue(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	}
	return v
}
