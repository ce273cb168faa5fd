package templates

import (
	"context"
	"errors"
	"strings"
	"time"

	"notification-dispatch/internal/errs"
	"notification-dispatch/internal/logging"
	"notification-dispatch/internal/models"
	"notification-dispatch/internal/render"
)

// Store persists templates keyed by name. Implementations return
// errs.ErrNotFound for unknown names and errs.ErrAlreadyExists on a duplicate
// create.
type Store interface {
	CreateTemplate(ctx context.Context, t models.Template) error
	GetTemplate(ctx context.Context, name string) (models.Template, error)
	ListTemplates(ctx context.Context, f models.TemplateFilter) ([]models.Template, error)
	UpdateTemplate(ctx context.Context, t models.Template) error
	DeleteTemplate(ctx context.Context, name string) error
}

// Preview is a template rendered with sample values.
type Preview struct {
	Subject    string   `json:"subject,omitempty"`
	Content    string   `json:"content"`
	Unresolved []string `json:"unresolved"`
}

// Service manages the template catalogue.
type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

func NewService(store Store, logger *logging.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create validates and stores a new template. Templates without declared
// variables get them derived from their placeholders.
func (s *Service) Create(ctx context.Context, t models.Template) (models.Template, error) {
	t.Name = strings.TrimSpace(t.Name)
	deriveVariables(&t)
	if err := t.Validate(); err != nil {
		return models.Template{}, err
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if err := s.store.CreateTemplate(ctx, t); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			return models.Template{}, errs.Wrap(errs.KindValidation, err, "template %q already exists", t.Name)
		}
		s.logger.Errorf("Failed to create template %s: %v", t.Name, err)
		return models.Template{}, err
	}
	s.logger.Infof("Created template %s (%s)", t.Name, t.Channel)
	return t, nil
}

// Get returns a template by name.
func (s *Service) Get(ctx context.Context, name string) (models.Template, error) {
	t, err := s.store.GetTemplate(ctx, name)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Template{}, errs.Wrap(errs.KindTemplateNotFound, err, "template %q not found", name)
		}
		return models.Template{}, err
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, f models.TemplateFilter) ([]models.Template, error) {
	return s.store.ListTemplates(ctx, f)
}

// Update replaces the mutable fields of an existing template. The name and
// creation time are kept.
func (s *Service) Update(ctx context.Context, name string, t models.Template) (models.Template, error) {
	existing, err := s.Get(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	t.Name = existing.Name
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.now().UTC()
	deriveVariables(&t)
	if err := t.Validate(); err != nil {
		return models.Template{}, err
	}
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return models.Template{}, s.storeErr(name, err)
	}
	s.logger.Infof("Updated template %s", name)
	return t, nil
}

// Duplicate copies a template under newName. The copy starts inactive. An
// empty newName defaults to "<name>_copy".
func (s *Service) Duplicate(ctx context.Context, name, newName string) (models.Template, error) {
	src, err := s.Get(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		newName = name + "_copy"
	}
	c := src.Clone()
	c.Name = newName
	c.IsActive = false
	return s.Create(ctx, c)
}

// SetActive enables or disables a template.
func (s *Service) SetActive(ctx context.Context, name string, active bool) (models.Template, error) {
	t, err := s.Get(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	t.IsActive = active
	t.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateTemplate(ctx, t); err != nil {
		return models.Template{}, s.storeErr(name, err)
	}
	s.logger.Infof("Template %s active=%t", name, active)
	return t, nil
}

// Toggle flips the active flag.
func (s *Service) Toggle(ctx context.Context, name string) (models.Template, error) {
	t, err := s.Get(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	return s.SetActive(ctx, name, !t.IsActive)
}

func (s *Service) Delete(ctx context.Context, name string) error {
	if err := s.store.DeleteTemplate(ctx, name); err != nil {
		return s.storeErr(name, err)
	}
	s.logger.Infof("Deleted template %s", name)
	return nil
}

// Preview renders a template with the given values regardless of its active
// flag.
func (s *Service) Preview(ctx context.Context, name string, values map[string]string) (Preview, error) {
	t, err := s.Get(ctx, name)
	if err != nil {
		return Preview{}, err
	}
	subject, body := render.Template(t, values)
	unresolved := render.Placeholders(subject, body)
	if unresolved == nil {
		unresolved = []string{}
	}
	return Preview{Subject: subject, Content: body, Unresolved: unresolved}, nil
}

// Resolve returns an active template usable on channel ch.
func (s *Service) Resolve(ctx context.Context, name string, ch models.Channel) (models.Template, error) {
	t, err := s.Get(ctx, name)
	if err != nil {
		return models.Template{}, err
	}
	if !t.IsActive {
		return models.Template{}, errs.New(errs.KindTemplateInactive, "template %q is inactive", name)
	}
	if t.Channel != ch {
		return models.Template{}, errs.Validation("template %q is for channel %s, not %s", name, t.Channel, ch)
	}
	return t, nil
}

func (s *Service) storeErr(name string, err error) error {
	if errors.Is(err, errs.ErrNotFound) {
		return errs.Wrap(errs.KindTemplateNotFound, err, "template %q not found", name)
	}
	s.logger.Errorf("Template store error for %s: %v", name, err)
	return err
}

func deriveVariables(t *models.Template) {
	if len(t.Variables) > 0 {
		return
	}
	for _, key := range render.Placeholders(t.Subject, t.Content) {
		t.Variables = append(t.Variables, models.Variable{Name: key})
	}
}
