// Package intel normalizes a raw threat-intelligence bundle into an immutable,
// query-able in-memory index of entities and typed relationships.
package intel

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/obsidiansec/personaforge/api/schemas"
)

var (
	// ErrMalformedBundle means the bundle is structurally unusable; Load
	// returns no partial store in that case.
	ErrMalformedBundle = errors.New("malformed intelligence bundle")
	// ErrNotFound means no entity matched the given id, name, or alias.
	ErrNotFound = errors.New("entity not found")
	// ErrAmbiguousName means a name or alias resolved to more than one
	// entity. The store never guesses.
	ErrAmbiguousName = errors.New("ambiguous entity name")
)

// edgeSet is one adjacency bucket: relationship kind to target id set.
type edgeSet map[schemas.RelationshipKind]map[string]struct{}

// Store is the loaded, read-only intelligence index. After Load returns, the
// store is never mutated, so any number of concurrent readers may query it
// without locking.
type Store struct {
	entities map[string]schemas.Entity
	forward  map[string]edgeSet
	reverse  map[string]edgeSet
	// names maps lowercased canonical names and aliases to entity ids.
	names map[string][]string

	droppedEdges   int
	skippedObjects int

	log *zap.Logger
}

// Load builds a store from a bundle in a single pass over objects and
// relationships. Relationships referencing unknown entity ids are dropped and
// counted, not fatal; absence of the group or technique kinds is.
func Load(bundle schemas.Bundle, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		entities: make(map[string]schemas.Entity, len(bundle.Objects)),
		forward:  make(map[string]edgeSet),
		reverse:  make(map[string]edgeSet),
		names:    make(map[string][]string),
		log:      logger.Named("intel"),
	}

	if len(bundle.Objects) == 0 {
		return nil, fmt.Errorf("%w: bundle contains no objects", ErrMalformedBundle)
	}

	// Pass 1: entities and the name index.
	kinds := make(map[schemas.EntityKind]int)
	for _, obj := range bundle.Objects {
		kind, ok := parseKind(obj.Kind)
		if !ok {
			s.skippedObjects++
			continue
		}
		if obj.ID == "" {
			return nil, fmt.Errorf("%w: object of kind %q has empty id", ErrMalformedBundle, obj.Kind)
		}
		if _, dup := s.entities[obj.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %q", ErrMalformedBundle, obj.ID)
		}
		ent := schemas.Entity{
			ID:          obj.ID,
			Kind:        kind,
			Name:        obj.Name,
			Aliases:     append([]string(nil), obj.Aliases...),
			Description: obj.Description,
			Tactic:      obj.Tactic,
			Tags:        append([]string(nil), obj.Tags...),
			FirstSeen:   obj.FirstSeen,
			LastSeen:    obj.LastSeen,
		}
		s.entities[obj.ID] = ent
		kinds[kind]++

		s.indexName(ent.Name, ent.ID)
		for _, alias := range ent.Aliases {
			s.indexName(alias, ent.ID)
		}
	}

	for _, required := range []schemas.EntityKind{schemas.KindGroup, schemas.KindTechnique} {
		if kinds[required] == 0 {
			return nil, fmt.Errorf("%w: no %q objects present", ErrMalformedBundle, required)
		}
	}

	// Pass 2: adjacency. Duplicate edges collapse via set semantics. Gating on
	// kind rather than id keeps a skipped object from donating edges to a kept
	// entity that happens to share its id.
	for _, obj := range bundle.Objects {
		if _, ok := parseKind(obj.Kind); !ok {
			continue
		}
		for _, rel := range obj.Relationships {
			if _, ok := s.entities[rel.TargetID]; !ok {
				s.droppedEdges++
				continue
			}
			addEdge(s.forward, obj.ID, rel.Kind, rel.TargetID)
			addEdge(s.reverse, rel.TargetID, rel.Kind, obj.ID)
		}
	}

	s.log.Info("Intelligence bundle loaded",
		zap.Int("entities", len(s.entities)),
		zap.Int("groups", kinds[schemas.KindGroup]),
		zap.Int("techniques", kinds[schemas.KindTechnique]),
		zap.Int("software", kinds[schemas.KindSoftware]),
		zap.Int("dropped_edges", s.droppedEdges),
		zap.Int("skipped_objects", s.skippedObjects),
	)
	return s, nil
}

func parseKind(raw string) (schemas.EntityKind, bool) {
	switch schemas.EntityKind(strings.ToLower(raw)) {
	case schemas.KindGroup:
		return schemas.KindGroup, true
	case schemas.KindTechnique:
		return schemas.KindTechnique, true
	case schemas.KindSoftware:
		return schemas.KindSoftware, true
	default:
		return "", false
	}
}

func (s *Store) indexName(name, id string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	for _, existing := range s.names[key] {
		if existing == id {
			return
		}
	}
	s.names[key] = append(s.names[key], id)
}

func addEdge(adj map[string]edgeSet, from string, kind schemas.RelationshipKind, to string) {
	bucket, ok := adj[from]
	if !ok {
		bucket = make(edgeSet)
		adj[from] = bucket
	}
	targets, ok := bucket[kind]
	if !ok {
		targets = make(map[string]struct{})
		bucket[kind] = targets
	}
	targets[to] = struct{}{}
}

// Entity returns the entity with the given id.
func (s *Store) Entity(id string) (schemas.Entity, error) {
	ent, ok := s.entities[id]
	if !ok {
		return schemas.Entity{}, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return ent, nil
}

// HasEntity reports whether an entity with the given id is loaded.
func (s *Store) HasEntity(id string) bool {
	_, ok := s.entities[id]
	return ok
}

// Related returns the entities connected to id by the given relationship kind
// in the given direction, sorted by entity id. A node with no such
// relationships yields an empty slice, not an error.
func (s *Store) Related(id string, kind schemas.RelationshipKind, dir schemas.Direction) []schemas.Entity {
	adj := s.forward
	if dir == schemas.Reverse {
		adj = s.reverse
	}
	targets := adj[id][kind]
	if len(targets) == 0 {
		return []schemas.Entity{}
	}
	out := make([]schemas.Entity, 0, len(targets))
	for target := range targets {
		out = append(out, s.entities[target])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolveName resolves a canonical name or alias to an entity, matching
// case-insensitively and exactly. Partial names fail with ErrNotFound;
// names shared by several entities fail with ErrAmbiguousName.
func (s *Store) ResolveName(nameOrAlias string) (schemas.Entity, error) {
	// An exact id match wins before alias resolution is attempted.
	if ent, ok := s.entities[nameOrAlias]; ok {
		return ent, nil
	}
	ids := s.names[strings.ToLower(strings.TrimSpace(nameOrAlias))]
	switch len(ids) {
	case 0:
		return schemas.Entity{}, fmt.Errorf("%w: %q", ErrNotFound, nameOrAlias)
	case 1:
		return s.entities[ids[0]], nil
	default:
		return schemas.Entity{}, fmt.Errorf("%w: %q matches %d entities", ErrAmbiguousName, nameOrAlias, len(ids))
	}
}

// Groups returns all group entities sorted by id.
func (s *Store) Groups() []schemas.Entity {
	var out []schemas.Entity
	for _, ent := range s.entities {
		if ent.Kind == schemas.KindGroup {
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of loaded entities.
func (s *Store) Len() int { return len(s.entities) }

// DroppedEdges reports how many relationship edges referenced unknown entity
// ids and were discarded during Load.
func (s *Store) DroppedEdges() int { return s.droppedEdges }

// SkippedObjects reports how many bundle objects had an unknown kind.
func (s *Store) SkippedObjects() int { return s.skippedObjects }
