package sparql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptyUpdate — операция без шаблонов DELETE и INSERT.
	ErrEmptyUpdate = errors.New("sparql: update has neither delete nor insert template")
	// ErrVarInData — переменная в операции INSERT DATA / DELETE DATA.
	ErrVarInData = errors.New("sparql: variable in data-only update")
)

// Validate проверяет, что операцию можно отправить в хранилище.
func (u Update) Validate() error {
	if len(u.Delete) == 0 && len(u.Insert) == 0 {
		return ErrEmptyUpdate
	}
	if !u.IsData() {
		return nil
	}
	for _, q := range append(append([]Quad{}, u.Delete...), u.Insert...) {
		for _, t := range []Term{q.Graph, q.S, q.P, q.O} {
			if t.IsVar() {
				return fmt.Errorf("%w: %s", ErrVarInData, t)
			}
		}
	}
	return nil
}

// Render возвращает текст запроса SELECT.
func (s Select) Render() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.Vars) == 0 {
		b.WriteString("*")
	} else {
		for i, v := range s.Vars {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString("?" + v)
		}
	}
	b.WriteString(" WHERE {\n")
	writePatterns(&b, s.Where, 1)
	b.WriteString("}")
	if len(s.Order) > 0 {
		b.WriteString("\nORDER BY")
		for _, o := range s.Order {
			if o.Desc {
				b.WriteString(" DESC(?" + o.Var + ")")
			} else {
				b.WriteString(" ASC(?" + o.Var + ")")
			}
		}
	}
	if s.Limit > 0 {
		b.WriteString("\nLIMIT " + strconv.Itoa(s.Limit))
	}
	return b.String()
}

// Render возвращает текст одной операции обновления.
func (u Update) Render() string {
	var b strings.Builder
	if u.IsData() {
		if len(u.Delete) > 0 {
			b.WriteString("DELETE DATA {\n")
			writeQuads(&b, u.Delete)
			b.WriteString("}")
		}
		if len(u.Insert) > 0 {
			if len(u.Delete) > 0 {
				b.WriteString(" ;\n")
			}
			b.WriteString("INSERT DATA {\n")
			writeQuads(&b, u.Insert)
			b.WriteString("}")
		}
		return b.String()
	}

	if len(u.Delete) > 0 {
		b.WriteString("DELETE {\n")
		writeQuads(&b, u.Delete)
		b.WriteString("}\n")
	}
	if len(u.Insert) > 0 {
		b.WriteString("INSERT {\n")
		writeQuads(&b, u.Insert)
		b.WriteString("}\n")
	}
	b.WriteString("WHERE {\n")
	writePatterns(&b, u.Where, 1)
	b.WriteString("}")
	return b.String()
}

// RenderUpdates склеивает операции в один запрос обновления.
func RenderUpdates(ops ...Update) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		parts = append(parts, op.Render())
	}
	return strings.Join(parts, " ;\n")
}

func writeQuads(b *strings.Builder, quads []Quad) {
	var order []Term
	groups := make(map[Term][]Triple)
	for _, q := range quads {
		if _, ok := groups[q.Graph]; !ok {
			order = append(order, q.Graph)
		}
		groups[q.Graph] = append(groups[q.Graph], q.Triple)
	}
	for _, g := range order {
		indent(b, 1)
		b.WriteString("GRAPH " + g.String() + " {\n")
		for _, t := range groups[g] {
			indent(b, 2)
			writeTriple(b, t)
		}
		indent(b, 1)
		b.WriteString("}\n")
	}
}

func writePatterns(b *strings.Builder, patterns []Pattern, depth int) {
	for _, p := range patterns {
		indent(b, depth)
		switch p := p.(type) {
		case Triple:
			writeTriple(b, p)
		case Graph:
			b.WriteString("GRAPH " + p.Name.String() + " {\n")
			writePatterns(b, p.Patterns, depth+1)
			indent(b, depth)
			b.WriteString("}\n")
		case Optional:
			b.WriteString("OPTIONAL {\n")
			writePatterns(b, p.Patterns, depth+1)
			indent(b, depth)
			b.WriteString("}\n")
		case Values:
			b.WriteString("VALUES ?" + p.Var + " {")
			for _, t := range p.Terms {
				b.WriteString(" " + t.String())
			}
			b.WriteString(" }\n")
		}
	}
}

func writeTriple(b *strings.Builder, t Triple) {
	b.WriteString(t.S.String() + " " + t.P.String() + " " + t.O.String() + " .\n")
}

func indent(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
}
