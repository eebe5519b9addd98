package memory

import (
	"github.com/vladislavdragonenkov/basket/internal/sparql"
	"github.com/vladislavdragonenkov/basket/internal/vocab"
)

// Базы IRI ресурсов каталога, которые создаются фикстурами.
const (
	OfferingBase      = "http://veeakker.be/offerings/"
	DeliveryPlaceBase = "http://veeakker.be/delivery-places/"
)

// CatalogSeed описывает содержимое каталога для локального запуска.
type CatalogSeed struct {
	Offerings      []string `yaml:"offerings"`
	DeliveryPlaces []string `yaml:"delivery_places"`
}

// Seed загружает предложения и места доставки в граф каталога.
func (s *TripleStore) Seed(catalogGraph string, seed CatalogSeed) {
	for _, id := range seed.Offerings {
		s.AddOffering(catalogGraph, id)
	}
	for _, id := range seed.DeliveryPlaces {
		s.AddDeliveryPlace(catalogGraph, id)
	}
}

// AddOffering добавляет предложение каталога и возвращает его IRI.
func (s *TripleStore) AddOffering(catalogGraph, id string) string {
	iri := OfferingBase + id
	s.Add(sparql.Quads(sparql.IRI(catalogGraph),
		sparql.T(sparql.IRI(iri), vocab.UUID, sparql.String(id)),
	)...)
	return iri
}

// AddDeliveryPlace добавляет место доставки каталога и возвращает его IRI.
func (s *TripleStore) AddDeliveryPlace(catalogGraph, id string) string {
	iri := DeliveryPlaceBase + id
	s.Add(sparql.Quads(sparql.IRI(catalogGraph),
		sparql.T(sparql.IRI(iri), vocab.UUID, sparql.String(id)),
	)...)
	return iri
}

// RemoveSubject удаляет все тройки ресурса во всех графах.
func (s *TripleStore) RemoveSubject(iri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject := sparql.IRI(iri)
	kept := s.quads[:0]
	for _, q := range s.quads {
		if q.S == subject {
			delete(s.index, q)
			continue
		}
		kept = append(kept, q)
	}
	s.quads = kept
}

// LinkAccount связывает сессию с аккаунтом так, как это делает сервис входа:
// граф аккаунта принадлежит пользователю, у пользователя есть аккаунт,
// сессия указывает на аккаунт.
func (s *TripleStore) LinkAccount(session, accountGraph, user, account string) {
	g := sparql.IRI(accountGraph)
	s.Add(sparql.Quads(g,
		sparql.T(g, vocab.GraphBelongsToUser, sparql.IRI(user)),
		sparql.T(sparql.IRI(user), vocab.Account, sparql.IRI(account)),
	)...)
	s.Add(sparql.Quad{
		Graph:  sparql.IRI(SessionsGraph),
		Triple: sparql.T(sparql.IRI(session), vocab.SessionAccount, sparql.IRI(account)),
	})
}

// SessionsGraph — граф, в котором сервис входа хранит сессии.
const SessionsGraph = "http://mu.semte.ch/graphs/sessions"
