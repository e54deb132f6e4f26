package coordinator

import (
	"context"
	"sync"

	"broadcast-console/pkg/models"
)

// TemplateStore caches the operator's templates and the current selection.
// The selection is always empty or a member of the last loaded set.
type TemplateStore struct {
	src TemplateSource

	mu        sync.RWMutex
	templates []models.MessageTemplate
	selected  int
	hasSel    bool
}

func NewTemplateStore(src TemplateSource) *TemplateStore {
	return &TemplateStore{src: src}
}

// Load replaces the cached set. On failure the set becomes empty.
func (s *TemplateStore) Load(ctx context.Context) ([]models.MessageTemplate, error) {
	templates, err := s.src.UserMessages(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.templates = nil
		s.revalidate()
		return nil, err
	}
	s.templates = append([]models.MessageTemplate(nil), templates...)
	s.revalidate()
	return s.copyTemplates(), nil
}

// revalidate keeps a selection that survived the reload and otherwise
// falls back to the first template, or none.
func (s *TemplateStore) revalidate() {
	if s.hasSel && s.indexOf(s.selected) >= 0 {
		return
	}
	if len(s.templates) > 0 {
		s.selected = s.templates[0].ID
		s.hasSel = true
		return
	}
	s.selected = 0
	s.hasSel = false
}

func (s *TemplateStore) indexOf(id int) int {
	for i, t := range s.templates {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// Select makes id the selected template. It fails with ErrUnknownTemplate
// when id is not in the loaded set.
func (s *TemplateStore) Select(id int) (models.MessageTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.MessageTemplate{}, ErrUnknownTemplate
	}
	s.selected = id
	s.hasSel = true
	return s.templates[i], nil
}

// Selected returns the selected template, if any.
func (s *TemplateStore) Selected() (models.MessageTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSel {
		return models.MessageTemplate{}, false
	}
	i := s.indexOf(s.selected)
	if i < 0 {
		return models.MessageTemplate{}, false
	}
	return s.templates[i], true
}

// Templates returns a copy of the loaded set.
func (s *TemplateStore) Templates() []models.MessageTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyTemplates()
}

func (s *TemplateStore) copyTemplates() []models.MessageTemplate {
	out := make([]models.MessageTemplate, len(s.templates))
	copy(out, s.templates)
	return out
}
