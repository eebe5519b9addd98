package sparql

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermString(t *testing.T) {
	tests := []struct {
		name string
		term Term
		want string
	}{
		{name: "iri", term: IRI("http://example.org/a"), want: "<http://example.org/a>"},
		{name: "iri escapes brackets", term: IRI("http://x/a>b c"), want: "<http://x/a%3Eb%20c>"},
		{name: "var", term: Var("basket"), want: "?basket"},
		{name: "plain string", term: String(`say "hi"`), want: `"say \"hi\""`},
		{name: "newline", term: String("a\nb"), want: `"a\nb"`},
		{name: "integer", term: Int(3), want: `"3"^^<` + XSDInteger + `>`},
		{name: "boolean", term: Bool(true), want: `"true"^^<` + XSDBoolean + `>`},
		{name: "zero term", term: Term{}, want: "UNDEF"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.term.String())
		})
	}
}

func TestTermAccessors(t *testing.T) {
	n, err := Int(42).Int()
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = IRI("http://x").Int()
	assert.Error(t, err)

	assert.True(t, Bool(true).Bool())
	assert.True(t, Literal("1", XSDBoolean).Bool())
	assert.False(t, String("yes").Bool())

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("x", 3600))
	parsed, err := DateTime(at).Time()
	require.NoError(t, err)
	assert.True(t, parsed.Equal(at))
	assert.Equal(t, time.UTC, parsed.Location())
}

func TestTermTime_Zoneless(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{name: "seconds", value: "2024-03-01T10:00:00", want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{name: "fraction", value: "2024-03-01T10:00:00.250", want: time.Date(2024, 3, 1, 10, 0, 0, 250_000_000, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := Literal(tt.value, XSDDateTime).Time()
			require.NoError(t, err)
			assert.True(t, parsed.Equal(tt.want))
			assert.Equal(t, time.UTC, parsed.Location())
		})
	}

	_, err := Literal("yesterday", XSDDateTime).Time()
	assert.Error(t, err)
}

func TestSelectRender(t *testing.T) {
	q := Select{
		Vars: []string{"id", "changedAt"},
		Where: []Pattern{
			InGraph(IRI("http://g/1"),
				T(IRI("http://g/1"), IRI("http://p/hasBasket"), Var("b")),
				T(Var("b"), IRI("http://p/uuid"), Var("id")),
				Opt(T(Var("b"), IRI("http://p/changed"), Var("changedAt"))),
			),
			Values{Var: "id", Terms: []Term{String("a"), String("b")}},
		},
		Order: []OrderBy{{Var: "changedAt", Desc: true}},
		Limit: 1,
	}

	want := "SELECT ?id ?changedAt WHERE {\n" +
		"  GRAPH <http://g/1> {\n" +
		"    <http://g/1> <http://p/hasBasket> ?b .\n" +
		"    ?b <http://p/uuid> ?id .\n" +
		"    OPTIONAL {\n" +
		"      ?b <http://p/changed> ?changedAt .\n" +
		"    }\n" +
		"  }\n" +
		"  VALUES ?id { \"a\" \"b\" }\n" +
		"}\n" +
		"ORDER BY DESC(?changedAt)\n" +
		"LIMIT 1"
	assert.Equal(t, want, q.Render())
}

func TestSelectRenderDistinctStar(t *testing.T) {
	q := Select{Distinct: true, Where: []Pattern{T(Var("s"), Var("p"), Var("o"))}}
	assert.True(t, strings.HasPrefix(q.Render(), "SELECT DISTINCT * WHERE {"))
}

func TestUpdateRenderData(t *testing.T) {
	g := IRI("http://g/1")
	op := Update{Insert: append(
		Quads(g, T(IRI("http://s/1"), IRI("http://p/a"), String("x"))),
		Quads(IRI("http://g/2"), T(IRI("http://s/2"), IRI("http://p/a"), Int(1)))...,
	)}

	want := "INSERT DATA {\n" +
		"  GRAPH <http://g/1> {\n" +
		"    <http://s/1> <http://p/a> \"x\" .\n" +
		"  }\n" +
		"  GRAPH <http://g/2> {\n" +
		"    <http://s/2> <http://p/a> \"1\"^^<" + XSDInteger + "> .\n" +
		"  }\n" +
		"}"
	assert.Equal(t, want, op.Render())
	require.NoError(t, op.Validate())
}

func TestUpdateRenderDeleteInsertWhere(t *testing.T) {
	g := IRI("http://g/1")
	op := Update{
		Delete: Quads(g, T(Var("b"), IRI("http://p/status"), Var("old"))),
		Insert: Quads(g, T(Var("b"), IRI("http://p/status"), IRI("http://s/confirmed"))),
		Where: []Pattern{InGraph(g,
			T(Var("b"), IRI("http://p/status"), Var("old")),
		)},
	}

	text := op.Render()
	assert.True(t, strings.HasPrefix(text, "DELETE {\n"))
	assert.Contains(t, text, "INSERT {\n  GRAPH <http://g/1> {\n    ?b <http://p/status> <http://s/confirmed> .")
	assert.Contains(t, text, "WHERE {\n  GRAPH <http://g/1> {\n    ?b <http://p/status> ?old .\n  }\n}")

	joined := RenderUpdates(op, op)
	assert.Equal(t, 1, strings.Count(joined, " ;\n"))
}

func TestUpdateValidate(t *testing.T) {
	assert.ErrorIs(t, Update{}.Validate(), ErrEmptyUpdate)

	bad := Update{Insert: Quads(IRI("http://g"), T(Var("s"), IRI("http://p"), String("x")))}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrVarInData))

	withWhere := bad
	withWhere.Where = []Pattern{T(Var("s"), IRI("http://p"), Var("o"))}
	assert.NoError(t, withWhere.Validate())
}
