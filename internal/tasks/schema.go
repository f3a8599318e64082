package tasks

import (
	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/ir"
)

// TriggerParams returns the parameter schema of a trigger.
func (s *Service) TriggerParams(trigger string) ([]ir.Field, error) {
	spec, err := s.catalog.Trigger(trigger)
	if err != nil {
		return nil, err
	}
	return nonNil(spec.Fields), nil
}

// ReactionParams returns the parameter schema of a reaction. Reactions that
// take no arguments return an empty schema.
func (s *Service) ReactionParams(reaction string) ([]ir.Field, error) {
	spec, err := s.catalog.Reaction(reaction)
	if err != nil {
		return nil, err
	}
	return nonNil(spec.Fields), nil
}

// Catalog returns the vocabulary tasks are validated against.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

func nonNil(fields []ir.Field) []ir.Field {
	if fields == nil {
		return []ir.Field{}
	}
	return fields
}
