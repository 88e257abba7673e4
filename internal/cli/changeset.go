package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tidemark/normstore/resource"
)

// Changeset is a declarative batch of edits read from a YAML file.
type Changeset struct {
	Changes []Change `yaml:"changes"`
}

// Change is one edit in a changeset.
type Change struct {
	// Op is "post", "patch", or "delete".
	Op string `yaml:"op"`

	Type          string            `yaml:"type"`
	ID            string            `yaml:"id"`
	Attributes    map[string]any    `yaml:"attributes"`
	Relationships map[string]RelRef `yaml:"relationships"`
}

// RelRef is a relationship target in changeset YAML: either a single
// reference or a list.
type RelRef struct {
	One  *Ref  `yaml:"one"`
	Many []Ref `yaml:"many"`
}

// Ref names a resource by identity pair.
type Ref struct {
	Type string `yaml:"type"`
	ID   string `yaml:"id"`
}

// LoadChangeset reads and validates a changeset file.
func LoadChangeset(path string) (*Changeset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read changeset: %w", err)
	}
	var cs Changeset
	if err := yaml.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("parse changeset %s: %w", path, err)
	}
	if len(cs.Changes) == 0 {
		return nil, fmt.Errorf("changeset %s holds no changes", path)
	}
	for i, ch := range cs.Changes {
		if err := ch.validate(); err != nil {
			return nil, fmt.Errorf("change %d: %w", i+1, err)
		}
	}
	return &cs, nil
}

func (c Change) validate() error {
	switch c.Op {
	case "post", "patch", "delete":
	default:
		return fmt.Errorf("unknown op %q: must be post, patch, or delete", c.Op)
	}
	if c.Type == "" || c.ID == "" {
		return fmt.Errorf("%s change requires type and id", c.Op)
	}
	if c.Op == "delete" && (len(c.Attributes) > 0 || len(c.Relationships) > 0) {
		return fmt.Errorf("delete change carries a body")
	}
	return nil
}

// Identifier returns the change's identity pair.
func (c Change) Identifier() resource.Identifier {
	return resource.Identifier{Type: c.Type, ID: c.ID}
}

// Resource materializes the change body as a resource.
func (c Change) Resource() (*resource.Resource, error) {
	res := &resource.Resource{Type: c.Type, ID: c.ID}

	if len(c.Attributes) > 0 {
		res.Attributes = make(resource.Attributes, len(c.Attributes))
		for name, raw := range c.Attributes {
			value, err := resource.FromAny(raw)
			if err != nil {
				return nil, fmt.Errorf("attribute %q: %w", name, err)
			}
			res.Attributes[name] = value
		}
	}

	if len(c.Relationships) > 0 {
		res.Relationships = make(map[string]resource.Relationship, len(c.Relationships))
		for name, ref := range c.Relationships {
			rel, err := ref.relationship()
			if err != nil {
				return nil, fmt.Errorf("relationship %q: %w", name, err)
			}
			res.Relationships[name] = rel
		}
	}
	return res, nil
}

func (r RelRef) relationship() (resource.Relationship, error) {
	switch {
	case r.One != nil && len(r.Many) > 0:
		return resource.Relationship{}, fmt.Errorf("both one and many set")
	case r.One != nil:
		return resource.ToOne(resource.Identifier{Type: r.One.Type, ID: r.One.ID}), nil
	default:
		ids := make([]resource.Identifier, len(r.Many))
		for i, ref := range r.Many {
			ids[i] = resource.Identifier{Type: ref.Type, ID: ref.ID}
		}
		return resource.ToManyOf(ids...), nil
	}
}
