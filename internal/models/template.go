package models

import (
	"strings"
	"time"

	"notification-dispatch/internal/errs"
)

// Variable is a placeholder declared by a Template.
type Variable struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	DefaultValue string `json:"defaultValue,omitempty"`
}

// Template is a named, reusable message skeleton scoped to one channel.
type Template struct {
	Name        string     `json:"name"`
	Channel     Channel    `json:"channel"`
	Category    Category   `json:"category"`
	Subject     string     `json:"subject,omitempty"`
	Content     string     `json:"content"`
	Variables   []Variable `json:"variables"`
	IsActive    bool       `json:"isActive"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Defaults returns the non-empty default values keyed by variable name.
func (t Template) Defaults() map[string]string {
	out := make(map[string]string, len(t.Variables))
	for _, v := range t.Variables {
		if v.DefaultValue != "" {
			out[v.Name] = v.DefaultValue
		}
	}
	return out
}

// Validate checks the structural invariants of a template.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errs.Validation("template name is required")
	}
	if !t.Channel.Valid() {
		return errs.Validation("unknown channel %q", t.Channel)
	}
	if !t.Category.Valid() {
		return errs.Validation("unknown category %q", t.Category)
	}
	if strings.TrimSpace(t.Content) == "" {
		return errs.Validation("template content is required")
	}
	if t.Subject != "" && !t.Channel.SupportsSubject() {
		return errs.Validation("subject is not supported on channel %s", t.Channel)
	}
	seen := make(map[string]bool, len(t.Variables))
	for _, v := range t.Variables {
		if strings.TrimSpace(v.Name) == "" {
			return errs.Validation("variable name is required")
		}
		if strings.ContainsAny(v.Name, "{} \t\r\n\f") {
			return errs.Validation("variable %q must not contain braces or whitespace", v.Name)
		}
		if seen[v.Name] {
			return errs.Validation("duplicate variable %q", v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// Clone returns a deep copy of t.
func (t Template) Clone() Template {
	c := t
	c.Variables = append([]Variable(nil), t.Variables...)
	return c
}

// TemplateFilter narrows a template listing. Zero values match everything.
type TemplateFilter struct {
	Channel  Channel
	Category Category
	Active   *bool
}

func (f TemplateFilter) Match(t Template) bool {
	if f.Channel != "" && t.Channel != f.Channel {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	if f.Active != nil && t.IsActive != *f.Active {
		return false
	}
	return true
}
