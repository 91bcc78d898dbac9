package flow

import (
	"fmt"

	"github.com/Osangy/api-sub000/internal/models"
)

// Schema declares what a flow kind collects from the user. Adding a new
// kind means adding a Schema implementation and registering it here, not
// editing the engine.
type Schema interface {
	// Kind identifies the flow kind this schema serves.
	Kind() models.FlowKind
	// Requirements computes the attributes to collect, in prompt order,
	// from the subject's current variant data.
	Requirements(subject *models.Product) []models.AttributeRequirement
}

var registry = make(map[models.FlowKind]Schema)

// Register associates a FlowKind with a Schema implementation.
func Register(s Schema) {
	registry[s.Kind()] = s
}

// SchemaFor retrieves the Schema for a given flow kind.
func SchemaFor(kind models.FlowKind) (Schema, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("no schema registered for flow kind %s", kind)
	}
	return s, nil
}

// AddCartSchema collects the variant attributes needed to add a product to
// the cart: color first when the product comes in colors, then size.
type AddCartSchema struct{}

// Kind returns the addCart flow kind.
func (AddCartSchema) Kind() models.FlowKind { return models.FlowKindAddCart }

// Requirements builds the ordered requirement list from the product's
// variants. A product with a single color and no sizes yields no
// requirements at all; such a flow completes immediately.
func (AddCartSchema) Requirements(subject *models.Product) []models.AttributeRequirement {
	var reqs []models.AttributeRequirement
	if colors := subject.Colors(); len(colors) > 1 {
		reqs = append(reqs, models.AttributeRequirement{Name: models.AttributeColor, Domain: colors})
	}
	if sizes := subject.Sizes(); len(sizes) > 1 {
		reqs = append(reqs, models.AttributeRequirement{Name: models.AttributeSize, Domain: sizes})
	}
	return reqs
}

func init() {
	Register(AddCartSchema{})
}
