package xsd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           xmlns="http://espa.cr.usgs.gov/v2"
           targetNamespace="http://espa.cr.usgs.gov/v2"
           elementFormDefault="qualified">

  <xs:simpleType name="dataType">
    <xs:restriction base="xs:string">
      <xs:enumeration value="INT16"/>
      <xs:enumeration value="UINT8"/>
      <xs:enumeration value="FLOAT32"/>
    </xs:restriction>
  </xs:simpleType>

  <xs:simpleType name="sceneID">
    <xs:restriction base="xs:string">
      <xs:pattern value="L[CET]0[4578]_[A-Z0-9]{4}_\d{6}_\d{8}_\d{8}_\d{2}_(T1|T2|RT)"/>
    </xs:restriction>
  </xs:simpleType>

  <xs:simpleType name="percent">
    <xs:restriction base="xs:double">
      <xs:minInclusive value="0"/>
      <xs:maxInclusive value="100"/>
    </xs:restriction>
  </xs:simpleType>

  <xs:attributeGroup name="bandAttrs">
    <xs:attribute name="name" type="xs:string" use="required"/>
    <xs:attribute name="data_type" type="dataType" use="required"/>
    <xs:attribute name="nlines" type="xs:positiveInteger"/>
  </xs:attributeGroup>

  <xs:complexType name="textWithUnits">
    <xs:simpleContent>
      <xs:extension base="xs:double">
        <xs:attribute name="units" type="xs:string"/>
      </xs:extension>
    </xs:simpleContent>
  </xs:complexType>

  <xs:complexType name="baseBand">
    <xs:sequence>
      <xs:element name="file_name" type="xs:string"/>
    </xs:sequence>
    <xs:attributeGroup ref="bandAttrs"/>
  </xs:complexType>

  <xs:complexType name="band">
    <xs:complexContent>
      <xs:extension base="baseBand">
        <xs:sequence>
          <xs:element name="pixel_size" type="textWithUnits" minOccurs="0"/>
          <xs:choice>
            <xs:element name="valid_range" type="xs:string"/>
            <xs:element name="class_values" type="xs:string"/>
          </xs:choice>
        </xs:sequence>
      </xs:extension>
    </xs:complexContent>
  </xs:complexType>

  <xs:element name="scene_id" type="sceneID"/>

  <xs:element name="espa_metadata">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="global_metadata">
          <xs:complexType>
            <xs:sequence>
              <xs:element ref="scene_id"/>
              <xs:element name="acquisition_date" type="xs:date"/>
              <xs:element name="cloud_cover" type="percent" minOccurs="0"/>
            </xs:sequence>
          </xs:complexType>
        </xs:element>
        <xs:element name="bands">
          <xs:complexType>
            <xs:sequence>
              <xs:element name="band" type="band" maxOccurs="unbounded"/>
            </xs:sequence>
          </xs:complexType>
        </xs:element>
      </xs:sequence>
      <xs:attribute name="version" type="xs:string" fixed="2.2.0" use="required"/>
    </xs:complexType>
  </xs:element>
</xs:schema>
`

const validDocument = `<?xml version="1.0" encoding="UTF-8"?>
<espa_metadata version="2.2.0" xmlns="http://espa.cr.usgs.gov/v2"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xsi:schemaLocation="http://espa.cr.usgs.gov/v2 espa.xsd">
  <global_metadata>
    <scene_id>LC08_L1TP_042034_20200101_20200113_01_T1</scene_id>
    <acquisition_date>2020-01-01</acquisition_date>
    <cloud_cover>12.5</cloud_cover>
  </global_metadata>
  <bands>
    <band name="sr_band1" data_type="INT16" nlines="7801">
      <file_name>LC08_sr_band1.tif</file_name>
      <pixel_size units="meters">30</pixel_size>
      <valid_range>-2000 16000</valid_range>
    </band>
    <band name="pixel_qa" data_type="UINT8">
      <file_name>LC08_pixel_qa.tif</file_name>
      <class_values>0 1 2</class_values>
    </band>
  </bands>
</espa_metadata>
`

func mustParse(t *testing.T, schema string) *Schema {
	t.Helper()
	s, err := Parse(strings.NewReader(schema))
	require.NoError(t, err)
	return s
}

func violations(t *testing.T, err error) []Violation {
	t.Helper()
	require.Error(t, err)
	verr, ok := err.(*ValidationErrors)
	require.True(t, ok, "want *ValidationErrors, got %T: %v", err, err)
	return verr.Violations
}

func TestValidateConformingDocument(t *testing.T) {
	s := mustParse(t, productSchema)
	assert.NoError(t, s.ValidateReader(strings.NewReader(validDocument)))
}

func TestValidateViolations(t *testing.T) {
	s := mustParse(t, productSchema)

	tests := []struct {
		name    string
		old     string
		new     string
		element string
		message string
	}{
		{
			name:    "MissingRequiredElement",
			old:     "<acquisition_date>2020-01-01</acquisition_date>",
			new:     "",
			element: "cloud_cover",
			message: "expected <acquisition_date>",
		},
		{
			name:    "EnumerationViolation",
			old:     `data_type="INT16"`,
			new:     `data_type="INT64"`,
			element: "band",
			message: "is not one of INT16, UINT8, FLOAT32",
		},
		{
			name:    "MissingRequiredAttribute",
			old:     `<band name="pixel_qa" data_type="UINT8">`,
			new:     `<band name="pixel_qa">`,
			element: "band",
			message: `missing required attribute "data_type"`,
		},
		{
			name:    "UndeclaredAttribute",
			old:     `nlines="7801"`,
			new:     `nlines="7801" nsamps="7681"`,
			element: "band",
			message: `attribute "nsamps" is not allowed`,
		},
		{
			name:    "FixedAttribute",
			old:     `version="2.2.0"`,
			new:     `version="2.1.0"`,
			element: "espa_metadata",
			message: `must be "2.2.0"`,
		},
		{
			name:    "PatternViolation",
			old:     "LC08_L1TP_042034_20200101_20200113_01_T1",
			new:     "LC08-bogus",
			element: "scene_id",
			message: "does not match pattern",
		},
		{
			name:    "BuiltinDate",
			old:     "2020-01-01",
			new:     "2020-02-30",
			element: "acquisition_date",
			message: "not a valid date",
		},
		{
			name:    "RangeViolation",
			old:     "<cloud_cover>12.5</cloud_cover>",
			new:     "<cloud_cover>120</cloud_cover>",
			element: "cloud_cover",
			message: "above the maximum 100",
		},
		{
			name:    "PositiveInteger",
			old:     `nlines="7801"`,
			new:     `nlines="0"`,
			element: "band",
			message: `attribute "nlines"`,
		},
		{
			name:    "ChoiceBothBranches",
			old:     "<class_values>0 1 2</class_values>",
			new:     "<class_values>0 1 2</class_values><valid_range>0 255</valid_range>",
			element: "valid_range",
			message: "unexpected element in <band>",
		},
		{
			name:    "ChoiceMissing",
			old:     "<class_values>0 1 2</class_values>",
			new:     "",
			element: "band",
			message: "missing required element <valid_range> or <class_values>",
		},
		{
			name:    "BaseContentMissing",
			old:     "<file_name>LC08_pixel_qa.tif</file_name>",
			new:     "",
			element: "class_values",
			message: "expected <file_name>",
		},
		{
			name:    "SimpleContentChild",
			old:     `<pixel_size units="meters">30</pixel_size>`,
			new:     `<pixel_size units="meters"><x/></pixel_size>`,
			element: "pixel_size",
			message: "not allowed in simple content",
		},
		{
			name:    "CharacterContent",
			old:     "<bands>",
			new:     "<bands>stray text",
			element: "bands",
			message: "character content is not allowed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(validDocument, tt.old, tt.new, 1)
			require.NotEqual(t, validDocument, doc)

			vs := violations(t, s.ValidateReader(strings.NewReader(doc)))
			require.NotEmpty(t, vs)
			assert.Equal(t, tt.element, vs[0].Element)
			assert.Contains(t, vs[0].Message, tt.message)
			assert.Greater(t, vs[0].Line, 0)
		})
	}
}

func TestValidateUnknownRoot(t *testing.T) {
	s := mustParse(t, productSchema)
	vs := violations(t, s.ValidateReader(strings.NewReader(`<metadata/>`)))
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Message, "no global declaration")
}

func TestValidateNamespaces(t *testing.T) {
	s := mustParse(t, productSchema)
	assert.Equal(t, "http://espa.cr.usgs.gov/v2", s.TargetNamespace)

	tests := []struct {
		name    string
		old     string
		new     string
		element string
		message string
	}{
		{
			name:    "RootWithoutNamespace",
			old:     ` xmlns="http://espa.cr.usgs.gov/v2"`,
			new:     "",
			element: "espa_metadata",
			message: `element is in no namespace, expected namespace "http://espa.cr.usgs.gov/v2"`,
		},
		{
			name:    "RootInOtherNamespace",
			old:     `xmlns="http://espa.cr.usgs.gov/v2"`,
			new:     `xmlns="http://espa.cr.usgs.gov/v1"`,
			element: "espa_metadata",
			message: `element is in namespace "http://espa.cr.usgs.gov/v1"`,
		},
		{
			name:    "ChildInOtherNamespace",
			old:     "<bands>",
			new:     `<bands xmlns="urn:other">`,
			element: "bands",
			message: `expected namespace "http://espa.cr.usgs.gov/v2"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(validDocument, tt.old, tt.new, 1)
			require.NotEqual(t, validDocument, doc)

			vs := violations(t, s.ValidateReader(strings.NewReader(doc)))
			assert.Equal(t, tt.element, vs[0].Element)
			assert.Contains(t, vs[0].Message, tt.message)
		})
	}

	t.Run("PrefixedDocument", func(t *testing.T) {
		doc := `<e:scene_id xmlns:e="http://espa.cr.usgs.gov/v2">LC08_L1TP_042034_20200101_20200113_01_T1</e:scene_id>`
		assert.NoError(t, s.ValidateReader(strings.NewReader(doc)))
	})
}

func TestValidateElementForm(t *testing.T) {
	s := mustParse(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="urn:scene">
  <xs:element name="scene">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="id" type="xs:string"/>
        <xs:element name="path" type="xs:int" form="qualified"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`)

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"UnqualifiedLocal", `<s:scene xmlns:s="urn:scene"><id>a</id><s:path>42</s:path></s:scene>`, true},
		{"QualifiedLocalNotAllowed", `<s:scene xmlns:s="urn:scene"><s:id>a</s:id><s:path>42</s:path></s:scene>`, false},
		{"FormQualifiedMissingNamespace", `<s:scene xmlns:s="urn:scene"><id>a</id><path>42</path></s:scene>`, false},
		{"DefaultNamespaceLeaksToLocal", `<scene xmlns="urn:scene"><id>a</id><path>42</path></scene>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateReader(strings.NewReader(tt.doc))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateMalformedDocument(t *testing.T) {
	s := mustParse(t, productSchema)
	err := s.ValidateReader(strings.NewReader(`<espa_metadata><unclosed></espa_metadata>`))
	require.Error(t, err)
	_, ok := err.(*ValidationErrors)
	assert.False(t, ok)
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	s := mustParse(t, productSchema)

	good := filepath.Join(dir, "good.xml")
	require.NoError(t, os.WriteFile(good, []byte(validDocument), 0644))
	assert.NoError(t, s.Validate(good))

	bad := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(bad, []byte(strings.Replace(validDocument, `version="2.2.0"`, `version="9"`, 1)), 0644))
	err := s.Validate(bad)
	require.Error(t, err)
	verr, ok := err.(*ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, bad, verr.Path)
	assert.True(t, strings.HasPrefix(err.Error(), bad+": 1 schema violation(s): line "))
	assert.Len(t, verr.Strings(), 1)

	assert.Error(t, s.Validate(filepath.Join(dir, "missing.xml")))
}

func TestCompileFollowsIncludes(t *testing.T) {
	dir := t.TempDir()
	types := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="yesNo">
    <xs:restriction base="xs:token">
      <xs:enumeration value="yes"/>
      <xs:enumeration value="no"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`
	main := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:include schemaLocation="common/types.xsd"/>
  <xs:element name="flag" type="yesNo"/>
</xs:schema>`

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "common"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common", "types.xsd"), []byte(types), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.xsd"), []byte(main), 0644))

	s, err := Compile(filepath.Join(dir, "main.xsd"))
	require.NoError(t, err)

	assert.NoError(t, s.ValidateReader(strings.NewReader("<flag> yes </flag>")))
	assert.Error(t, s.ValidateReader(strings.NewReader("<flag>maybe</flag>")))
}

func TestCompileIncludeAdoptsNamespace(t *testing.T) {
	dir := t.TempDir()
	common := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="note" type="xs:string"/>
</xs:schema>`
	main := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:product">
  <xs:include schemaLocation="common.xsd"/>
  <xs:element name="flag" type="xs:boolean"/>
</xs:schema>`

	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.xsd"), []byte(common), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.xsd"), []byte(main), 0644))

	s, err := Compile(filepath.Join(dir, "main.xsd"))
	require.NoError(t, err)
	assert.Equal(t, "urn:product", s.TargetNamespace)

	assert.NoError(t, s.ValidateReader(strings.NewReader(`<note xmlns="urn:product">text</note>`)))
	assert.Error(t, s.ValidateReader(strings.NewReader(`<note>text</note>`)))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"NotSchema", `<root/>`},
		{"Malformed", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">`},
		{"NoElements", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"/>`},
		{"UnknownType", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="a" type="missingType"/>
</xs:schema>`},
		{"DanglingRef", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="a"><xs:complexType><xs:sequence>
    <xs:element ref="b"/>
  </xs:sequence></xs:complexType></xs:element>
</xs:schema>`},
		{"UnknownGroup", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="a"><xs:complexType>
    <xs:group ref="g"/>
  </xs:complexType></xs:element>
</xs:schema>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.schema))
			assert.Error(t, err)
		})
	}

	_, err := Compile(filepath.Join(t.TempDir(), "missing.xsd"))
	assert.Error(t, err)
}

func TestModelGroupsAndWildcards(t *testing.T) {
	s := mustParse(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:group name="corner">
    <xs:sequence>
      <xs:element name="x" type="xs:double"/>
      <xs:element name="y" type="xs:double"/>
    </xs:sequence>
  </xs:group>
  <xs:element name="bounds">
    <xs:complexType>
      <xs:sequence>
        <xs:group ref="corner" minOccurs="2" maxOccurs="2"/>
        <xs:any minOccurs="0" maxOccurs="unbounded"/>
      </xs:sequence>
      <xs:anyAttribute/>
    </xs:complexType>
  </xs:element>
  <xs:element name="info">
    <xs:complexType>
      <xs:all>
        <xs:element name="a" type="xs:int"/>
        <xs:element name="b" type="xs:boolean" minOccurs="0"/>
      </xs:all>
    </xs:complexType>
  </xs:element>
</xs:schema>`)

	tests := []struct {
		name  string
		doc   string
		valid bool
	}{
		{"TwoCorners", `<bounds><x>1</x><y>2</y><x>3</x><y>4</y></bounds>`, true},
		{"ExtraWildcard", `<bounds units="m"><x>1</x><y>2</y><x>3</x><y>4</y><note>any</note></bounds>`, true},
		{"OneCorner", `<bounds><x>1</x><y>2</y></bounds>`, false},
		{"BadDouble", `<bounds><x>1</x><y>north</y><x>3</x><y>4</y></bounds>`, false},
		{"AllAnyOrder", `<info><b>true</b><a>5</a></info>`, true},
		{"AllOptionalAbsent", `<info><a>-5</a></info>`, true},
		{"AllRequiredAbsent", `<info><b>0</b></info>`, false},
		{"IntOverflow", `<info><a>3000000000</a></info>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateReader(strings.NewReader(tt.doc))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSimpleTypeVariants(t *testing.T) {
	s := mustParse(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="band">
    <xs:restriction base="xs:string">
      <xs:minLength value="2"/>
      <xs:maxLength value="4"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:simpleType name="bands">
    <xs:list itemType="band"/>
  </xs:simpleType>
  <xs:simpleType name="fillOrCount">
    <xs:union memberTypes="xs:nonNegativeInteger">
      <xs:simpleType>
        <xs:restriction base="xs:string">
          <xs:enumeration value="fill"/>
        </xs:restriction>
      </xs:simpleType>
    </xs:union>
  </xs:simpleType>
  <xs:element name="r">
    <xs:complexType>
      <xs:attribute name="bands" type="bands"/>
      <xs:attribute name="n" type="fillOrCount"/>
      <xs:attribute name="hex" type="xs:hexBinary"/>
      <xs:attribute name="when" type="xs:dateTime"/>
    </xs:complexType>
  </xs:element>
</xs:schema>`)

	tests := []struct {
		attrs string
		valid bool
	}{
		{`bands="b1 b2 qa"`, true},
		{`bands="b1 b12345"`, false},
		{`n="fill"`, true},
		{`n="12"`, true},
		{`n="-1"`, false},
		{`hex="0aFF"`, true},
		{`hex="0aF"`, false},
		{`when="2020-01-13T17:45:02Z"`, true},
		{`when="2020-01-13T25:00:00"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.attrs, func(t *testing.T) {
			err := s.ValidateReader(strings.NewReader("<r " + tt.attrs + "/>"))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCheckBuiltin(t *testing.T) {
	tests := []struct {
		typ   string
		value string
		valid bool
	}{
		{"xs:boolean", "true", true},
		{"xs:boolean", "yes", false},
		{"xs:decimal", "-1.50", true},
		{"xs:decimal", "1e3", false},
		{"xs:double", "1e3", true},
		{"xs:double", "INF", true},
		{"xs:float", "one", false},
		{"xs:unsignedByte", "255", true},
		{"xs:unsignedByte", "256", false},
		{"xs:short", "-32768", true},
		{"xs:negativeInteger", "0", false},
		{"xs:nonPositiveInteger", "-0", true},
		{"xs:time", "24:00:00", true},
		{"xs:gYear", "2020", true},
		{"xs:duration", "P1Y2MT3H", true},
		{"xs:duration", "P", false},
		{"xs:duration", "P1YT", false},
		{"xs:base64Binary", "aGVsbG8=", true},
		{"xs:string", "  anything  ", true},
		{"xs:unknownType", "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.value, func(t *testing.T) {
			err := checkBuiltin(tt.value, tt.typ)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
