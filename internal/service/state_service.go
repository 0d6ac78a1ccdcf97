package service

import (
	"context"
	"strings"
	"unicode"

	"marketplace-backoffice/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LocationStore is the persistence used for states and cities
type LocationStore interface {
	ListStates(ctx context.Context) ([]models.State, error)
	GetStateByID(ctx context.Context, id int64) (*models.State, error)
	ListCitiesByState(ctx context.Context, stateID int64) ([]models.City, error)
}

// StateService serves the read-only state and city catalog
type StateService struct {
	store LocationStore
}

func NewStateService(store LocationStore) *StateService {
	return &StateService{store: store}
}

// Fold lowercases s and strips diacritics so "São" matches "sao"
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// ListStates filters by accent-insensitive name and initials substrings
func (s *StateService) ListStates(ctx context.Context, name, initials string) ([]models.State, error) {
	states, err := s.store.ListStates(ctx)
	if err != nil {
		return nil, err
	}

	name, initials = Fold(name), Fold(initials)
	out := make([]models.State, 0, len(states))
	for _, st := range states {
		if name != "" && !strings.Contains(Fold(st.Name), name) {
			continue
		}
		if initials != "" && !strings.Contains(Fold(st.Initials), initials) {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *StateService) GetState(ctx context.Context, id int64) (*models.State, error) {
	return s.store.GetStateByID(ctx, id)
}

// ListCities returns the cities of a state whose name matches
func (s *StateService) ListCities(ctx context.Context, stateID int64, name string) ([]models.City, error) {
	if _, err := s.store.GetStateByID(ctx, stateID); err != nil {
		return nil, err
	}
	cities, err := s.store.ListCitiesByState(ctx, stateID)
	if err != nil {
		return nil, err
	}

	name = Fold(name)
	out := make([]models.City, 0, len(cities))
	for _, c := range cities {
		if name == "" || strings.Contains(Fold(c.Name), name) {
			out = append(out, c)
		}
	}
	return out, nil
}
