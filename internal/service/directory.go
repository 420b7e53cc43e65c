package service

import (
	"context"
	"fmt"
	"strings"

	"nursedesk/internal/domain"
	"nursedesk/internal/models"

	"github.com/rs/zerolog"
)

// PersonDirectory resolves caller identities to people.
type PersonDirectory struct {
	people PersonStore
	logger *zerolog.Logger
}

func NewPersonDirectory(people PersonStore, logger *zerolog.Logger) *PersonDirectory {
	l := logger.With().Str("component", "person_directory").Logger()
	return &PersonDirectory{people: people, logger: &l}
}

// Resolve looks up a caller by username. An empty identity is a validation error.
func (d *PersonDirectory) Resolve(ctx context.Context, identity string) (*models.Person, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("empty identity: %w", domain.ErrValidation)
	}
	return d.people.GetPersonByUsername(ctx, identity)
}

func (d *PersonDirectory) ResolveID(ctx context.Context, id int64) (*models.Person, error) {
	if id <= 0 {
		return nil, fmt.Errorf("person %d: %w", id, domain.ErrPersonNotFound)
	}
	return d.people.GetPersonByID(ctx, id)
}

// ListStudents returns all students ordered by name. Only faculty may list them.
func (d *PersonDirectory) ListStudents(ctx context.Context, callerIdentity string) ([]models.Person, error) {
	caller, err := d.Resolve(ctx, callerIdentity)
	if err != nil {
		return nil, err
	}
	if !caller.IsFaculty() {
		return nil, fmt.Errorf("%s (%s) listing students: %w", caller.Username, caller.Role, domain.ErrForbidden)
	}
	return d.people.ListPeopleByRole(ctx, models.RoleStudent)
}
