// Package sparql описывает запросы к triple store как данные.
//
// Запросы собираются из термов, триплетов и групп шаблонов, а не склейкой строк.
// Один и тот же запрос рендерится в текст SPARQL 1.1 для HTTP-хранилища и
// напрямую исполняется in-memory реализацией.
package sparql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Стандартные IRI типов литералов.
const (
	XSDString   = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger  = "http://www.w3.org/2001/XMLSchema#integer"
	XSDBoolean  = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDDateTime = "http://www.w3.org/2001/XMLSchema#dateTime"

	RDFType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// TermKind различает IRI, литералы и переменные.
type TermKind uint8

const (
	KindIRI TermKind = iota + 1
	KindLiteral
	KindVar
)

// Term — узел графа или переменная шаблона. Значение сравнимо через ==.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
}

// IRI создаёт терм-ссылку.
func IRI(value string) Term {
	return Term{Kind: KindIRI, Value: value}
}

// Var создаёт переменную шаблона; имя передаётся без "?".
func Var(name string) Term {
	return Term{Kind: KindVar, Value: name}
}

// String создаёт строковый литерал.
func String(value string) Term {
	return Term{Kind: KindLiteral, Value: value, Datatype: XSDString}
}

// Int создаёт литерал xsd:integer.
func Int(value int) Term {
	return Term{Kind: KindLiteral, Value: strconv.Itoa(value), Datatype: XSDInteger}
}

// Bool создаёт литерал xsd:boolean.
func Bool(value bool) Term {
	return Term{Kind: KindLiteral, Value: strconv.FormatBool(value), Datatype: XSDBoolean}
}

// DateTime создаёт литерал xsd:dateTime в UTC.
func DateTime(value time.Time) Term {
	return Term{Kind: KindLiteral, Value: value.UTC().Format(time.RFC3339Nano), Datatype: XSDDateTime}
}

// Literal создаёт литерал с произвольным типом.
func Literal(value, datatype string) Term {
	if datatype == "" {
		datatype = XSDString
	}
	return Term{Kind: KindLiteral, Value: value, Datatype: datatype}
}

func (t Term) IsVar() bool { return t.Kind == KindVar }

func (t Term) IsIRI() bool { return t.Kind == KindIRI }

func (t Term) IsZero() bool { return t.Kind == 0 }

// Int возвращает целое значение литерала.
func (t Term) Int() (int, error) {
	if t.Kind != KindLiteral {
		return 0, fmt.Errorf("term %s is not a literal", t)
	}
	return strconv.Atoi(strings.TrimSpace(t.Value))
}

// Bool возвращает логическое значение литерала ("true"/"1").
func (t Term) Bool() bool {
	if t.Kind != KindLiteral {
		return false
	}
	v := strings.TrimSpace(t.Value)
	return v == "true" || v == "1"
}

// localDateTime — xsd:dateTime без часового пояса.
const localDateTime = "2006-01-02T15:04:05.999999999"

// Time разбирает литерал xsd:dateTime. Значение без пояса считается UTC.
func (t Term) Time() (time.Time, error) {
	if t.Kind != KindLiteral {
		return time.Time{}, fmt.Errorf("term %s is not a literal", t)
	}
	v := strings.TrimSpace(t.Value)
	parsed, err := time.Parse(time.RFC3339Nano, v)
	if err == nil {
		return parsed, nil
	}
	if local, localErr := time.ParseInLocation(localDateTime, v, time.UTC); localErr == nil {
		return local, nil
	}
	return time.Time{}, err
}

// String рендерит терм в синтаксисе SPARQL.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + escapeIRI(t.Value) + ">"
	case KindVar:
		return "?" + t.Value
	case KindLiteral:
		lit := `"` + escapeString(t.Value) + `"`
		if t.Datatype != "" && t.Datatype != XSDString {
			lit += "^^<" + escapeIRI(t.Datatype) + ">"
		}
		return lit
	default:
		return "UNDEF"
	}
}

var stringEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\b", `\b`,
	"\f", `\f`,
)

func escapeString(value string) string {
	return stringEscaper.Replace(value)
}

// escapeIRI кодирует символы, запрещённые внутри IRIREF.
func escapeIRI(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r <= 0x20, r == '<', r == '>', r == '"', r == '{', r == '}',
			r == '|', r == '^', r == '`', r == '\\':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
