package sparql

// Pattern — элемент группового шаблона WHERE.
type Pattern interface {
	isPattern()
}

// Triple — шаблон триплета; используется и в WHERE, и в шаблонах Insert/Delete.
type Triple struct {
	S, P, O Term
}

// T создаёт триплет.
func T(s, p, o Term) Triple {
	return Triple{S: s, P: p, O: o}
}

// Graph ограничивает шаблоны именованным графом (IRI или переменная).
type Graph struct {
	Name     Term
	Patterns []Pattern
}

// InGraph создаёт блок GRAPH name { ... }.
func InGraph(name Term, patterns ...Pattern) Graph {
	return Graph{Name: name, Patterns: patterns}
}

// Optional — левое соединение с вложенной группой.
type Optional struct {
	Patterns []Pattern
}

// Opt создаёт блок OPTIONAL { ... }.
func Opt(patterns ...Pattern) Optional {
	return Optional{Patterns: patterns}
}

// Values фиксирует допустимые значения одной переменной.
type Values struct {
	Var   string
	Terms []Term
}

func (Triple) isPattern()   {}
func (Graph) isPattern()    {}
func (Optional) isPattern() {}
func (Values) isPattern()   {}

// Quad — триплет в именованном графе; элемент шаблонов DELETE/INSERT.
type Quad struct {
	Graph Term
	Triple
}

// Quads раскладывает триплеты в один граф.
func Quads(graph Term, triples ...Triple) []Quad {
	out := make([]Quad, 0, len(triples))
	for _, t := range triples {
		out = append(out, Quad{Graph: graph, Triple: t})
	}
	return out
}

// OrderBy задаёт сортировку результата.
type OrderBy struct {
	Var  string
	Desc bool
}

// Select — запрос SELECT.
type Select struct {
	Vars     []string
	Distinct bool
	Where    []Pattern
	Order    []OrderBy
	Limit    int
}

// Update — одна операция обновления.
// Без Where операция становится INSERT DATA / DELETE DATA.
// Тройки шаблона с несвязанной переменной пропускаются для конкретного решения.
type Update struct {
	Delete []Quad
	Insert []Quad
	Where  []Pattern
}

// IsData сообщает, что операция не содержит WHERE.
func (u Update) IsData() bool {
	return len(u.Where) == 0
}

// Solution — одна строка результата: переменная → значение.
type Solution map[string]Term

// Get возвращает значение переменной, если она связана.
func (s Solution) Get(name string) (Term, bool) {
	t, ok := s[name]
	return t, ok && !t.IsZero()
}

// Value возвращает лексическую форму значения или "".
func (s Solution) Value(name string) string {
	if t, ok := s.Get(name); ok {
		return t.Value
	}
	return ""
}

// Results — результат SELECT.
type Results struct {
	Vars      []string
	Solutions []Solution
}

// First возвращает первую строку результата.
func (r Results) First() (Solution, bool) {
	if len(r.Solutions) == 0 {
		return nil, false
	}
	return r.Solutions[0], true
}

// Empty сообщает, что строк нет.
func (r Results) Empty() bool {
	return len(r.Solutions) == 0
}
