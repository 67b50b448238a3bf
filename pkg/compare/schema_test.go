package compare

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/scival/pkg/models"
)

const bandSchema = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="band">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="short_name" type="xs:string"/>
        <xs:element name="file_name" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>
`

const (
	bandMissingFileName = "<band>\n  <short_name>LC08SR</short_name>\n</band>\n"
	bandComplete        = "<band>\n  <short_name>LC08SR</short_name>\n  <file_name>sr_band1.tif</file_name>\n</band>\n"
)

func TestSchemaValidator(t *testing.T) {
	h := NewTestHelper(t)
	ctx := context.Background()
	schemaPath := h.write(filepath.Join(h.tempDir, "espa.xsd"), []byte(bandSchema))

	v := NewSchemaValidator(schemaPath)
	require.NoError(t, v.Err())

	t.Run("MissingRequiredElement", func(t *testing.T) {
		doc := h.CreateTestFile("missing.xml", []byte(bandMissingFileName))
		res := v.ValidateDocument(ctx, h.log, doc)
		require.Equal(t, models.ResultSchemaInvalid, res.Kind)
		require.Len(t, res.Violations, 1)
		assert.Contains(t, res.Violations[0], "missing required element <file_name>")
		assert.Contains(t, res.Reason, doc)
		assert.Contains(t, res.Reason, schemaPath)
	})

	t.Run("ElementAdded", func(t *testing.T) {
		doc := h.CreateTestFile("complete.xml", []byte(bandComplete))
		res := v.ValidateDocument(ctx, h.log, doc)
		assert.Equal(t, models.ResultMatch, res.Kind)
	})

	t.Run("MalformedDocument", func(t *testing.T) {
		doc := h.CreateTestFile("broken.xml", []byte("<band><short_name>"))
		res := v.ValidateDocument(ctx, h.log, doc)
		assert.Equal(t, models.ResultUnreadable, res.Kind)
	})

	t.Run("MissingSchemaIsUnreadable", func(t *testing.T) {
		missing := NewSchemaValidator(filepath.Join(h.tempDir, "nope.xsd"))
		require.Error(t, missing.Err())

		doc := h.CreateTestFile("any.xml", []byte(bandComplete))
		res := missing.ValidateDocument(ctx, h.log, doc)
		assert.Equal(t, models.ResultUnreadable, res.Kind)
		assert.Equal(t, CheckSchema, res.Check)
	})
}

func TestXMLValidator(t *testing.T) {
	h := NewTestHelper(t)
	ctx := context.Background()
	schemaPath := h.write(filepath.Join(h.tempDir, "espa.xsd"), []byte(bandSchema))

	withSchema := &XMLValidator{Schema: NewSchemaValidator(schemaPath)}
	textOnly := &XMLValidator{}

	t.Run("SchemaFailureShortCircuits", func(t *testing.T) {
		h.CreateMasterFile("a.xml", []byte(bandComplete))
		h.CreateTestFile("a.xml", []byte(bandMissingFileName))

		res := withSchema.Validate(ctx, h.log, h.Pair(models.KindXML, "a.xml"))
		assert.Equal(t, models.ResultSchemaInvalid, res.Kind)

		res = textOnly.Validate(ctx, h.log, h.Pair(models.KindXML, "a.xml"))
		require.Equal(t, models.ResultTextDiff, res.Kind)
		assert.Equal(t, []string{"  <file_name>sr_band1.tif</file_name>"}, res.Removed)
		assert.Empty(t, res.Added)
	})

	t.Run("ValidAndEqual", func(t *testing.T) {
		h.CreateMasterFile("b.xml", []byte(bandComplete))
		h.CreateTestFile("b.xml", []byte(bandComplete))

		res := withSchema.Validate(ctx, h.log, h.Pair(models.KindXML, "b.xml"))
		assert.Equal(t, models.ResultMatch, res.Kind)
		assert.Equal(t, CheckText, res.Check)
	})
}
