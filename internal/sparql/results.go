package sparql

import (
	"encoding/json"
	"fmt"
	"io"
)

// ContentTypeResults — формат ответа SELECT по протоколу SPARQL 1.1.
const ContentTypeResults = "application/sparql-results+json"

type jsonResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]jsonBinding `json:"bindings"`
	} `json:"results"`
}

type jsonBinding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// DecodeResults разбирает тело ответа application/sparql-results+json.
func DecodeResults(r io.Reader) (Results, error) {
	var raw jsonResults
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Results{}, fmt.Errorf("decode sparql results: %w", err)
	}

	out := Results{
		Vars:      raw.Head.Vars,
		Solutions: make([]Solution, 0, len(raw.Results.Bindings)),
	}
	for _, row := range raw.Results.Bindings {
		sol := make(Solution, len(row))
		for name, b := range row {
			term, err := b.term()
			if err != nil {
				return Results{}, fmt.Errorf("binding %q: %w", name, err)
			}
			sol[name] = term
		}
		out.Solutions = append(out.Solutions, sol)
	}
	return out, nil
}

// EncodeResults пишет результат в формате application/sparql-results+json.
func EncodeResults(w io.Writer, res Results) error {
	var raw jsonResults
	raw.Head.Vars = res.Vars
	raw.Results.Bindings = make([]map[string]jsonBinding, 0, len(res.Solutions))
	for _, sol := range res.Solutions {
		row := make(map[string]jsonBinding, len(sol))
		for name, t := range sol {
			switch t.Kind {
			case KindIRI:
				row[name] = jsonBinding{Type: "uri", Value: t.Value}
			case KindLiteral:
				b := jsonBinding{Type: "literal", Value: t.Value}
				if t.Datatype != XSDString {
					b.Datatype = t.Datatype
				}
				row[name] = b
			}
		}
		raw.Results.Bindings = append(raw.Results.Bindings, row)
	}
	return json.NewEncoder(w).Encode(raw)
}

func (b jsonBinding) term() (Term, error) {
	switch b.Type {
	case "uri":
		return IRI(b.Value), nil
	case "literal", "typed-literal":
		return Literal(b.Value, b.Datatype), nil
	case "bnode":
		// Пустые узлы наружу не отдаются, но встречаются в ответах хранилища.
		return IRI("_:" + b.Value), nil
	default:
		return Term{}, fmt.Errorf("unknown term type %q", b.Type)
	}
}
