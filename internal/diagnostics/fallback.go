package diagnostics

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/boreal-financial/catalog-sync/internal/catalog"
)

const productSchemaURL = "https://boreal.financial/schemas/catalog-products.json"

//go:embed data/fallback_products.json
var fallbackJSON []byte

//go:embed data/product.schema.json
var productSchemaJSON []byte

var loadFallback = sync.OnceValues(func() ([]catalog.Product, error) {
	return parseProducts(fallbackJSON)
})

// FallbackProducts returns a copy of the embedded sample catalog
func FallbackProducts() ([]catalog.Product, error) {
	products, err := loadFallback()
	if err != nil {
		return nil, err
	}
	return append([]catalog.Product(nil), products...), nil
}

// compileProductSchema compiles the embedded product list schema
func compileProductSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(productSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse product schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(productSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add product schema: %w", err)
	}
	schema, err := compiler.Compile(productSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile product schema: %w", err)
	}
	return schema, nil
}

// parseProducts validates data against the product list schema and decodes it
func parseProducts(data []byte) ([]catalog.Product, error) {
	schema, err := compileProductSchema()
	if err != nil {
		return nil, err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse product list: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("product list failed schema validation: %w", err)
	}

	var products []catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to decode product list: %w", err)
	}
	return products, nil
}
