package compare

import (
	"context"
	"errors"
	"fmt"

	"github.com/sdejongh/scival/pkg/logging"
	"github.com/sdejongh/scival/pkg/models"
	"github.com/sdejongh/scival/pkg/xsd"
)

// SchemaValidator checks XML documents against a schema compiled once.
// A schema that cannot be compiled makes every document Unreadable.
type SchemaValidator struct {
	path   string
	schema *xsd.Schema
	err    error
}

// NewSchemaValidator compiles the schema at path
func NewSchemaValidator(path string) *SchemaValidator {
	schema, err := xsd.Compile(path)
	return &SchemaValidator{path: path, schema: schema, err: err}
}

// Err returns the schema compilation error, if any
func (v *SchemaValidator) Err() error {
	return v.err
}

// Name returns the validator name
func (v *SchemaValidator) Name() string {
	return CheckSchema
}

// Validate checks the test document of the pair
func (v *SchemaValidator) Validate(ctx context.Context, log logging.Logger, pair models.FilePair) models.DiffResult {
	return v.ValidateDocument(ctx, log.WithFields(pairFields(pair)), pair.TestPath)
}

// ValidateDocument checks one document
func (v *SchemaValidator) ValidateDocument(ctx context.Context, log logging.Logger, path string) models.DiffResult {
	fields := logging.Fields{"document": path, "schema": v.path}

	if v.err != nil {
		log.Error(ctx, "Schema is unusable", v.err, fields)
		return models.Unreadable(CheckSchema, fmt.Errorf("schema %s: %w", v.path, v.err))
	}

	err := v.schema.Validate(path)
	if err == nil {
		log.Info(ctx, "Document is valid against schema", fields)
		return models.Match(CheckSchema)
	}

	var verr *xsd.ValidationErrors
	if errors.As(err, &verr) {
		log.Error(ctx, "Document is not valid against schema", nil, logging.Fields{
			"document":   path,
			"schema":     v.path,
			"violations": len(verr.Violations),
		})
		return models.SchemaInvalid(fmt.Sprintf("%s is not valid against %s", path, v.path), verr.Strings())
	}

	log.Error(ctx, "Failed to read document", err, fields)
	return models.Unreadable(CheckSchema, err)
}

// XMLValidator validates the test document against the schema, when one
// is configured, and then diffs both documents as text
type XMLValidator struct {
	Text   TextDiffer
	Schema *SchemaValidator
}

// Name returns the validator name
func (v *XMLValidator) Name() string {
	return "xml"
}

// Validate checks the pair. A schema failure short-circuits the text diff.
func (v *XMLValidator) Validate(ctx context.Context, log logging.Logger, pair models.FilePair) models.DiffResult {
	if v.Schema != nil {
		if res := v.Schema.Validate(ctx, log, pair); !res.IsMatch() {
			return res
		}
	}
	return v.Text.Validate(ctx, log, pair)
}
