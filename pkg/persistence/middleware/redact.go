package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
)

// Mask replaces redacted string values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.DocumentStore
	patterns []*regexp.Regexp
}

// NewRedactMiddleware creates a middleware that masks string Parameters whose name matches
// one of the patterns before they reach the store. The caller's snapshot is not modified.
// Redaction is one-way: Load returns the masked values.
func NewRedactMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.DocumentStore) ports.DocumentStore {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Save(ctx context.Context, snap *domain.Snapshot) error {
	cloned := snap.Clone()
	cloned.Walk(func(_ domain.GID, p *domain.ParamSnapshot) {
		if p.Value == nil || !m.matches(p.Name) {
			return
		}
		switch p.Kind {
		case domain.KindString:
			v := domain.StringValue(Mask)
			p.Value = &v
		case domain.KindStringArray:
			masked := make([]string, len(p.Value.Strs))
			for i := range masked {
				masked[i] = Mask
			}
			v := domain.StringArrayValue(masked...)
			p.Value = &v
		}
	})
	return m.next.Save(ctx, cloned)
}

func (m *redactMiddleware) matches(name string) bool {
	for _, p := range m.patterns {
		if p.MatchString(name) {
			return true
		}
	}
	return false
}

func (m *redactMiddleware) Load(ctx context.Context, id string) (*domain.Snapshot, error) {
	return m.next.Load(ctx, id)
}

func (m *redactMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
