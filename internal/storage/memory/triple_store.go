package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/basket/internal/sparql"
)

// TripleStore — in-memory quad store, исполняющий запросы sparql напрямую.
//
// Шаблоны вне GRAPH сопоставляются со всеми графами. Все операции одного
// вызова Update применяются под одной блокировкой.
type TripleStore struct {
	mu    sync.RWMutex
	quads []sparql.Quad
	index map[sparql.Quad]struct{}
}

// NewTripleStore создаёт пустое хранилище.
func NewTripleStore() *TripleStore {
	return &TripleStore{index: make(map[sparql.Quad]struct{})}
}

type binding map[string]sparql.Term

func (b binding) extend(name string, t sparql.Term) binding {
	out := make(binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[name] = t
	return out
}

// Add загружает квады (используется для фикстур каталога и тестов).
func (s *TripleStore) Add(quads ...sparql.Quad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quads {
		s.insert(q)
	}
}

// Match возвращает квады, совпадающие с шаблоном; нулевой Term — любое значение.
func (s *TripleStore) Match(graph, subj, pred, obj sparql.Term) []sparql.Quad {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sparql.Quad
	for _, q := range s.quads {
		if matchAny(graph, q.Graph) && matchAny(subj, q.S) && matchAny(pred, q.P) && matchAny(obj, q.O) {
			out = append(out, q)
		}
	}
	return out
}

// Len возвращает число квадов.
func (s *TripleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.quads)
}

func matchAny(pattern, value sparql.Term) bool {
	return pattern.IsZero() || pattern == value
}

// Query исполняет SELECT.
func (s *TripleStore) Query(ctx context.Context, q sparql.Select) (sparql.Results, error) {
	if err := ctx.Err(); err != nil {
		return sparql.Results{}, err
	}

	s.mu.RLock()
	rows := s.evalGroup(q.Where, sparql.Term{}, []binding{{}})
	s.mu.RUnlock()

	vars := q.Vars
	if len(vars) == 0 {
		vars = collectVars(rows)
	}

	if len(q.Order) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, o := range q.Order {
				c := compareTerms(rows[i][o.Var], rows[j][o.Var])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	res := sparql.Results{Vars: vars, Solutions: make([]sparql.Solution, 0, len(rows))}
	seen := make(map[string]struct{})
	for _, row := range rows {
		sol := make(sparql.Solution, len(vars))
		for _, v := range vars {
			if t, ok := row[v]; ok {
				sol[v] = t
			}
		}
		if q.Distinct {
			key := solutionKey(vars, sol)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		res.Solutions = append(res.Solutions, sol)
		if q.Limit > 0 && len(res.Solutions) >= q.Limit {
			break
		}
	}
	return res, nil
}

// Update применяет операции по порядку; каждая следующая видит результат предыдущей.
func (s *TripleStore) Update(ctx context.Context, ops ...sparql.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, op := range ops {
		if err := op.Validate(); err != nil {
			return fmt.Errorf("update #%d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range ops {
		rows := []binding{{}}
		if !op.IsData() {
			rows = s.evalGroup(op.Where, sparql.Term{}, rows)
		}

		var del, ins []sparql.Quad
		for _, row := range rows {
			del = append(del, instantiate(op.Delete, row)...)
			ins = append(ins, instantiate(op.Insert, row)...)
		}
		for _, q := range del {
			s.remove(q)
		}
		for _, q := range ins {
			s.insert(q)
		}
	}
	return nil
}

func (s *TripleStore) insert(q sparql.Quad) {
	if _, ok := s.index[q]; ok {
		return
	}
	s.index[q] = struct{}{}
	s.quads = append(s.quads, q)
}

func (s *TripleStore) remove(q sparql.Quad) {
	if _, ok := s.index[q]; !ok {
		return
	}
	delete(s.index, q)
	for i := range s.quads {
		if s.quads[i] == q {
			s.quads = append(s.quads[:i], s.quads[i+1:]...)
			return
		}
	}
}

// instantiate подставляет решение в шаблон; тройки с несвязанной переменной пропускаются.
func instantiate(template []sparql.Quad, row binding) []sparql.Quad {
	out := make([]sparql.Quad, 0, len(template))
	for _, q := range template {
		g, ok1 := resolve(q.Graph, row)
		subj, ok2 := resolve(q.S, row)
		pred, ok3 := resolve(q.P, row)
		obj, ok4 := resolve(q.O, row)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			continue
		}
		if subj.Kind == sparql.KindLiteral || pred.Kind != sparql.KindIRI || g.Kind != sparql.KindIRI {
			continue
		}
		out = append(out, sparql.Quad{Graph: g, Triple: sparql.T(subj, pred, obj)})
	}
	return out
}

func resolve(t sparql.Term, row binding) (sparql.Term, bool) {
	if !t.IsVar() {
		return t, true
	}
	v, ok := row[t.Value]
	return v, ok
}

func (s *TripleStore) evalGroup(patterns []sparql.Pattern, graph sparql.Term, rows []binding) []binding {
	for _, p := range patterns {
		if len(rows) == 0 {
			return rows
		}
		switch p := p.(type) {
		case sparql.Triple:
			rows = s.evalTriple(p, graph, rows)
		case sparql.Graph:
			rows = s.evalGroup(p.Patterns, p.Name, rows)
		case sparql.Optional:
			var next []binding
			for _, row := range rows {
				ext := s.evalGroup(p.Patterns, graph, []binding{row})
				if len(ext) == 0 {
					next = append(next, row)
					continue
				}
				next = append(next, ext...)
			}
			rows = next
		case sparql.Values:
			rows = evalValues(p, rows)
		}
	}
	return rows
}

func (s *TripleStore) evalTriple(p sparql.Triple, graph sparql.Term, rows []binding) []binding {
	var out []binding
	for _, row := range rows {
		for _, q := range s.quads {
			next := row
			ok := true
			if !graph.IsZero() {
				next, ok = unify(graph, q.Graph, next)
			}
			if ok {
				next, ok = unify(p.S, q.S, next)
			}
			if ok {
				next, ok = unify(p.P, q.P, next)
			}
			if ok {
				next, ok = unify(p.O, q.O, next)
			}
			if ok {
				out = append(out, next)
			}
		}
	}
	return out
}

func unify(pattern, value sparql.Term, row binding) (binding, bool) {
	if !pattern.IsVar() {
		return row, pattern == value
	}
	if bound, ok := row[pattern.Value]; ok {
		return row, bound == value
	}
	return row.extend(pattern.Value, value), true
}

func evalValues(v sparql.Values, rows []binding) []binding {
	var out []binding
	for _, row := range rows {
		if bound, ok := row[v.Var]; ok {
			for _, t := range v.Terms {
				if t == bound {
					out = append(out, row)
					break
				}
			}
			continue
		}
		for _, t := range v.Terms {
			out = append(out, row.extend(v.Var, t))
		}
	}
	return out
}

func collectVars(rows []binding) []string {
	set := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			set[k] = struct{}{}
		}
	}
	vars := make([]string, 0, len(set))
	for k := range set {
		vars = append(vars, k)
	}
	sort.Strings(vars)
	return vars
}

func solutionKey(vars []string, sol sparql.Solution) string {
	var b strings.Builder
	for _, v := range vars {
		b.WriteString(sol[v].String())
		b.WriteByte(0)
	}
	return b.String()
}

// compareTerms упорядочивает значения для ORDER BY; несвязанные значения меньше любых.
func compareTerms(a, b sparql.Term) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return -1
	case b.IsZero():
		return 1
	}

	if a.Kind == sparql.KindLiteral && b.Kind == sparql.KindLiteral && a.Datatype == b.Datatype {
		switch a.Datatype {
		case sparql.XSDDateTime:
			ta, errA := a.Time()
			tb, errB := b.Time()
			if errA == nil && errB == nil {
				return ta.Compare(tb)
			}
		case sparql.XSDInteger:
			na, errA := a.Int()
			nb, errB := b.Int()
			if errA == nil && errB == nil {
				switch {
				case na < nb:
					return -1
				case na > nb:
					return 1
				default:
					return 0
				}
			}
		}
	}
	return strings.Compare(a.String(), b.String())
}

var _ sparql.Executor = (*TripleStore)(nil)
