// Package services provides linear name search over techniques.
package services

import (
	"strings"

	"github.com/kimhsiao/techniquebook/internal/models"
)

// Search returns the techniques of view whose name contains query, ignoring case.
// The query is matched as given, surrounding spaces included; a blank query matches
// nothing. A concrete view skips nodes hidden in it; the
// combined view searches both modes and skips only nodes hidden in both. Results
// keep fetch order, by name.
func (s *TechniqueService) Search(query string, view models.View) ([]*models.Technique, error) {
	if strings.TrimSpace(query) == "" {
		return []*models.Technique{}, nil
	}
	needle := strings.ToLower(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.all(view)
	if err != nil {
		return nil, err
	}
	out := []*models.Technique{}
	for _, t := range all {
		if t.VisibleIn(view) && strings.Contains(strings.ToLower(t.Name), needle) {
			out = append(out, t)
		}
	}
	return out, nil
}
