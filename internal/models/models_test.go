package models

import (
	"errors"
	"testing"
)

func sampleProduct() *Product {
	return &Product{
		ID:       "p1",
		ShopID:   "s1",
		Name:     "T-Shirt",
		Price:    1999,
		Currency: "USD",
		Variants: []Variant{
			{ID: "v1", ProductID: "p1", Color: "red", Size: "s"},
			{ID: "v2", ProductID: "p1", Color: "red", Size: "m"},
			{ID: "v3", ProductID: "p1", Color: "blue", Size: "s"},
			{ID: "v4", ProductID: "p1", Color: "blue", Size: "m"},
		},
	}
}

func TestProductColorsAndSizes(t *testing.T) {
	p := sampleProduct()

	colors := p.Colors()
	if len(colors) != 2 || colors[0] != "red" || colors[1] != "blue" {
		t.Errorf("expected [red blue], got %v", colors)
	}

	sizes := p.Sizes()
	if len(sizes) != 2 || sizes[0] != "s" || sizes[1] != "m" {
		t.Errorf("expected [s m], got %v", sizes)
	}
}

func TestProductColorsNormalizesCase(t *testing.T) {
	p := &Product{Variants: []Variant{
		{Color: "Red"},
		{Color: "RED"},
		{Color: "blue"},
	}}
	colors := p.Colors()
	if len(colors) != 2 || colors[0] != "red" || colors[1] != "blue" {
		t.Errorf("expected [red blue], got %v", colors)
	}
}

func TestResolveVariant(t *testing.T) {
	p := sampleProduct()

	v, err := p.ResolveVariant(map[string]string{AttributeColor: "blue", AttributeSize: "m"})
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if v.ID != "v4" {
		t.Errorf("expected v4, got %s", v.ID)
	}
}

func TestResolveVariantCaseInsensitive(t *testing.T) {
	p := sampleProduct()

	v, err := p.ResolveVariant(map[string]string{AttributeColor: "ReD", AttributeSize: "S"})
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if v.ID != "v1" {
		t.Errorf("expected v1, got %s", v.ID)
	}
}

func TestResolveVariantNotFound(t *testing.T) {
	p := sampleProduct()

	_, err := p.ResolveVariant(map[string]string{AttributeColor: "green", AttributeSize: "m"})
	if !errors.Is(err, ErrVariantNotFound) {
		t.Errorf("expected ErrVariantNotFound, got %v", err)
	}
}

func TestResolveVariantColorOnlyProduct(t *testing.T) {
	p := &Product{Variants: []Variant{
		{ID: "v1", Color: "black"},
		{ID: "v2", Color: "white"},
	}}

	v, err := p.ResolveVariant(map[string]string{AttributeColor: "white"})
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if v.ID != "v2" {
		t.Errorf("expected v2, got %s", v.ID)
	}
}
