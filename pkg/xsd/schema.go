// Package xsd compiles W3C XML Schema documents and validates instance
// documents against them. It covers the structural subset product
// metadata schemas rely on: global and local elements, element refs,
// named and anonymous complex types, sequence/choice/all groups with
// occurrence bounds, named model and attribute groups, complex and simple
// content extension, required and fixed attributes, and simple type
// restrictions (enumeration, pattern, bounds, lengths) over the built-in
// types. Element names are qualified by the targetNamespace according to
// elementFormDefault or the element's form; included documents without a
// targetNamespace adopt the including one. Attributes are matched by
// local name and xs:import is not followed.
package xsd

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// unbounded marks maxOccurs="unbounded"
const unbounded = math.MaxInt

// Schema is a compiled schema. It is safe for concurrent use once built.
type Schema struct {
	// TargetNamespace is the namespace of the top-level schema document
	TargetNamespace string

	elements   map[string]*element
	complex    map[string]*complexType
	simple     map[string]*simpleType
	groups     map[string]*particle
	attrGroups map[string]*attributeGroup
	attributes map[string]*attribute
}

type element struct {
	name     string
	ns       string
	ref      string
	typeName string
	complex  *complexType
	simple   *simpleType
	fixed    *string
	line     int
}

type particleKind int

const (
	particleElement particleKind = iota
	particleSequence
	particleChoice
	particleAll
	particleAny
	particleGroupRef
)

type particle struct {
	kind     particleKind
	element  *element
	children []*particle
	ref      string
	min, max int
}

type complexType struct {
	name          string
	base          string
	extension     bool
	simpleContent bool
	mixed         bool
	content       *particle
	attrs         []*attribute
	attrRefs      []string
	anyAttr       bool
}

type attribute struct {
	name     string
	ref      string
	typeName string
	simple   *simpleType
	required bool
	fixed    *string
}

type attributeGroup struct {
	attrs    []*attribute
	attrRefs []string
	anyAttr  bool
}

type simpleType struct {
	name       string
	base       string
	baseType   *simpleType
	enums      []string
	patterns   []string
	minIncl    *float64
	maxIncl    *float64
	minExcl    *float64
	maxExcl    *float64
	length     *int
	minLength  *int
	maxLength  *int
	listItem   string
	listType   *simpleType
	union      []string
	unionTypes []*simpleType
	compiled   []*regexp.Regexp
	resolved   bool
}

// Compile reads and compiles the schema at path. xs:include and
// xs:redefine locations are resolved relative to the schema file.
func Compile(path string) (*Schema, error) {
	s := newSchema()
	if err := s.load(path, "", map[string]bool{}); err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", path, err)
	}
	return s, nil
}

// Parse compiles a schema read from r. Includes are not followed.
func Parse(r io.Reader) (*Schema, error) {
	s := newSchema()
	doc, err := xmlquery.ParseWithOptions(r, xmlquery.ParserOptions{WithLineNumbers: true})
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	if _, _, err := s.addDocument(doc, ""); err != nil {
		return nil, err
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return s, nil
}

func newSchema() *Schema {
	return &Schema{
		elements:   make(map[string]*element),
		complex:    make(map[string]*complexType),
		simple:     make(map[string]*simpleType),
		groups:     make(map[string]*particle),
		attrGroups: make(map[string]*attributeGroup),
		attributes: make(map[string]*attribute),
	}
}

// load compiles the document at path and its includes. inherited is the
// including document's namespace.
func (s *Schema) load(path, inherited string, seen map[string]bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve schema path: %w", err)
	}
	if seen[abs] {
		return nil
	}
	seen[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("failed to open schema: %w", err)
	}
	defer f.Close()

	doc, err := xmlquery.ParseWithOptions(f, xmlquery.ParserOptions{WithLineNumbers: true})
	if err != nil {
		return fmt.Errorf("failed to parse schema %s: %w", abs, err)
	}

	includes, tns, err := s.addDocument(doc, inherited)
	if err != nil {
		return fmt.Errorf("%s: %w", abs, err)
	}
	for _, inc := range includes {
		if err := s.load(filepath.Join(filepath.Dir(abs), inc), tns, seen); err != nil {
			return err
		}
	}
	return nil
}

// addDocument registers the top-level components of one schema document
// and returns its include locations and effective target namespace
func (s *Schema) addDocument(doc *xmlquery.Node, inherited string) ([]string, string, error) {
	root := firstElement(doc)
	if root == nil || root.Data != "schema" {
		return nil, "", fmt.Errorf("document root is not xs:schema")
	}

	d := &docParser{
		tns:       root.SelectAttr("targetNamespace"),
		qualified: root.SelectAttr("elementFormDefault") == "qualified",
	}
	if d.tns == "" {
		d.tns = inherited
	}
	if s.TargetNamespace == "" {
		s.TargetNamespace = d.tns
	}

	var includes []string
	for _, n := range childElements(root) {
		name := n.SelectAttr("name")
		switch n.Data {
		case "element":
			s.elements[name] = d.parseElement(n, true)
		case "complexType":
			s.complex[name] = d.parseComplexType(n)
		case "simpleType":
			s.simple[name] = parseSimpleType(n)
		case "group":
			if g := d.parseGroupDefinition(n); g != nil {
				s.groups[name] = g
			}
		case "attributeGroup":
			s.attrGroups[name] = parseAttributeGroup(n)
		case "attribute":
			s.attributes[name] = parseAttribute(n)
		case "include", "redefine":
			if loc := n.SelectAttr("schemaLocation"); loc != "" {
				includes = append(includes, loc)
			}
		}
	}
	return includes, d.tns, nil
}

// check resolves every reference so validation never meets a dangling name
func (s *Schema) check() error {
	if len(s.elements) == 0 {
		return fmt.Errorf("no global element declarations")
	}
	for _, e := range s.elements {
		if err := s.checkElement(e); err != nil {
			return err
		}
	}
	for _, ct := range s.complex {
		if err := s.checkComplex(ct); err != nil {
			return err
		}
	}
	for _, st := range s.simple {
		if err := s.resolveSimple(st); err != nil {
			return err
		}
	}
	for _, a := range s.attributes {
		if err := s.checkAttribute(a); err != nil {
			return err
		}
	}
	for _, g := range s.attrGroups {
		for _, a := range g.attrs {
			if err := s.checkAttribute(a); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Schema) checkElement(e *element) error {
	if e.ref != "" {
		if _, ok := s.elements[localName(e.ref)]; !ok {
			return fmt.Errorf("line %d: element ref %q is not declared", e.line, e.ref)
		}
		return nil
	}
	if e.complex != nil {
		return s.checkComplex(e.complex)
	}
	if e.simple != nil {
		return s.resolveSimple(e.simple)
	}
	if e.typeName != "" && !s.knownType(e.typeName) {
		return fmt.Errorf("line %d: element %q has unknown type %q", e.line, e.name, e.typeName)
	}
	return nil
}

func (s *Schema) checkComplex(ct *complexType) error {
	if ct.base != "" && !s.knownType(ct.base) {
		return fmt.Errorf("complex type %q has unknown base %q", ct.name, ct.base)
	}
	if err := s.checkParticle(ct.content); err != nil {
		return err
	}
	for _, ref := range ct.attrRefs {
		if _, ok := s.attrGroups[localName(ref)]; !ok {
			return fmt.Errorf("attribute group %q is not declared", ref)
		}
	}
	for _, a := range ct.attrs {
		if err := s.checkAttribute(a); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) checkAttribute(a *attribute) error {
	if a.ref != "" {
		if _, ok := s.attributes[localName(a.ref)]; !ok && !strings.HasPrefix(a.ref, "xml:") {
			return fmt.Errorf("attribute ref %q is not declared", a.ref)
		}
		return nil
	}
	if a.simple != nil {
		return s.resolveSimple(a.simple)
	}
	if a.typeName != "" && !s.knownSimple(a.typeName) {
		return fmt.Errorf("attribute %q has unknown type %q", a.name, a.typeName)
	}
	return nil
}

func (s *Schema) checkParticle(p *particle) error {
	if p == nil {
		return nil
	}
	switch p.kind {
	case particleElement:
		return s.checkElement(p.element)
	case particleGroupRef:
		if _, ok := s.groups[localName(p.ref)]; !ok {
			return fmt.Errorf("group ref %q is not declared", p.ref)
		}
	}
	for _, c := range p.children {
		if err := s.checkParticle(c); err != nil {
			return err
		}
	}
	return nil
}

// resolveSimple links a simple type to its base, list item or union types
func (s *Schema) resolveSimple(st *simpleType) error {
	if st.resolved {
		return nil
	}
	st.resolved = true

	for _, p := range st.patterns {
		// XSD-only escapes such as \i and \c have no RE2 equivalent; such
		// patterns are not enforced
		if re, err := regexp.Compile("^(?:" + p + ")$"); err == nil {
			st.compiled = append(st.compiled, re)
		}
	}

	for _, inline := range append([]*simpleType{st.baseType, st.listType}, st.unionTypes...) {
		if inline != nil {
			if err := s.resolveSimple(inline); err != nil {
				return err
			}
		}
	}

	if st.base != "" && st.baseType == nil && !isBuiltin(st.base) {
		base, ok := s.simple[localName(st.base)]
		if !ok {
			return fmt.Errorf("simple type %q has unknown base %q", st.name, st.base)
		}
		st.baseType = base
	}
	if st.listItem != "" && st.listType == nil && !isBuiltin(st.listItem) {
		item, ok := s.simple[localName(st.listItem)]
		if !ok {
			return fmt.Errorf("list type %q has unknown item type %q", st.name, st.listItem)
		}
		st.listType = item
	}
	for _, m := range st.union {
		if isBuiltin(m) {
			continue
		}
		member, ok := s.simple[localName(m)]
		if !ok {
			return fmt.Errorf("union type %q has unknown member %q", st.name, m)
		}
		st.unionTypes = append(st.unionTypes, member)
	}
	return nil
}

func (s *Schema) knownType(name string) bool {
	_, ok := s.complex[localName(name)]
	return ok || s.knownSimple(name)
}

func (s *Schema) knownSimple(name string) bool {
	_, ok := s.simple[localName(name)]
	return ok || isBuiltin(name)
}

// docParser carries the namespace settings of the schema document being
// parsed
type docParser struct {
	tns       string
	qualified bool
}

// parseElement reads an element declaration. Global elements always take
// the target namespace; local ones only when their form is qualified.
func (d *docParser) parseElement(n *xmlquery.Node, global bool) *element {
	e := &element{
		name:     n.SelectAttr("name"),
		ref:      n.SelectAttr("ref"),
		typeName: n.SelectAttr("type"),
		line:     n.LineNumber,
	}
	switch form := n.SelectAttr("form"); {
	case global, form == "qualified", form == "" && d.qualified:
		e.ns = d.tns
	}
	if v, ok := attrValue(n, "fixed"); ok {
		e.fixed = &v
	}
	for _, c := range childElements(n) {
		switch c.Data {
		case "complexType":
			e.complex = d.parseComplexType(c)
		case "simpleType":
			e.simple = parseSimpleType(c)
		}
	}
	return e
}

func (d *docParser) parseComplexType(n *xmlquery.Node) *complexType {
	ct := &complexType{name: n.SelectAttr("name"), mixed: n.SelectAttr("mixed") == "true"}
	d.parseComplexBody(n, ct)
	return ct
}

// parseComplexBody reads the content model and attributes of n into ct
func (d *docParser) parseComplexBody(n *xmlquery.Node, ct *complexType) {
	for _, c := range childElements(n) {
		switch c.Data {
		case "sequence", "choice", "all", "group":
			ct.content = d.parseParticle(c)
		case "attribute":
			ct.attrs = append(ct.attrs, parseAttribute(c))
		case "attributeGroup":
			ct.attrRefs = append(ct.attrRefs, c.SelectAttr("ref"))
		case "anyAttribute":
			ct.anyAttr = true
		case "complexContent", "simpleContent":
			ct.simpleContent = c.Data == "simpleContent"
			if c.SelectAttr("mixed") == "true" {
				ct.mixed = true
			}
			for _, ext := range childElements(c) {
				if ext.Data != "extension" && ext.Data != "restriction" {
					continue
				}
				ct.base = ext.SelectAttr("base")
				ct.extension = ext.Data == "extension"
				d.parseComplexBody(ext, ct)
			}
		}
	}
}

func (d *docParser) parseParticle(n *xmlquery.Node) *particle {
	p := &particle{min: occurs(n, "minOccurs", 1), max: occurs(n, "maxOccurs", 1)}

	switch n.Data {
	case "element":
		p.kind = particleElement
		p.element = d.parseElement(n, false)
		return p
	case "any":
		p.kind = particleAny
		return p
	case "group":
		p.kind = particleGroupRef
		p.ref = n.SelectAttr("ref")
		return p
	case "sequence":
		p.kind = particleSequence
	case "choice":
		p.kind = particleChoice
	case "all":
		p.kind = particleAll
	}

	for _, c := range childElements(n) {
		switch c.Data {
		case "element", "any", "group", "sequence", "choice", "all":
			p.children = append(p.children, d.parseParticle(c))
		}
	}
	return p
}

// parseGroupDefinition returns the model group inside a named xs:group
func (d *docParser) parseGroupDefinition(n *xmlquery.Node) *particle {
	for _, c := range childElements(n) {
		switch c.Data {
		case "sequence", "choice", "all":
			return d.parseParticle(c)
		}
	}
	return nil
}

func parseAttributeGroup(n *xmlquery.Node) *attributeGroup {
	g := &attributeGroup{}
	for _, c := range childElements(n) {
		switch c.Data {
		case "attribute":
			g.attrs = append(g.attrs, parseAttribute(c))
		case "attributeGroup":
			g.attrRefs = append(g.attrRefs, c.SelectAttr("ref"))
		case "anyAttribute":
			g.anyAttr = true
		}
	}
	return g
}

func parseAttribute(n *xmlquery.Node) *attribute {
	a := &attribute{
		name:     n.SelectAttr("name"),
		ref:      n.SelectAttr("ref"),
		typeName: n.SelectAttr("type"),
		required: n.SelectAttr("use") == "required",
	}
	if v, ok := attrValue(n, "fixed"); ok {
		a.fixed = &v
	}
	for _, c := range childElements(n) {
		if c.Data == "simpleType" {
			a.simple = parseSimpleType(c)
		}
	}
	return a
}

func parseSimpleType(n *xmlquery.Node) *simpleType {
	st := &simpleType{name: n.SelectAttr("name")}

	for _, c := range childElements(n) {
		switch c.Data {
		case "restriction":
			st.base = c.SelectAttr("base")
			for _, f := range childElements(c) {
				v := f.SelectAttr("value")
				switch f.Data {
				case "simpleType":
					st.baseType = parseSimpleType(f)
				case "enumeration":
					st.enums = append(st.enums, v)
				case "pattern":
					st.patterns = append(st.patterns, v)
				case "minInclusive":
					st.minIncl = parseFloatPtr(v)
				case "maxInclusive":
					st.maxIncl = parseFloatPtr(v)
				case "minExclusive":
					st.minExcl = parseFloatPtr(v)
				case "maxExclusive":
					st.maxExcl = parseFloatPtr(v)
				case "length":
					st.length = parseIntPtr(v)
				case "minLength":
					st.minLength = parseIntPtr(v)
				case "maxLength":
					st.maxLength = parseIntPtr(v)
				}
			}
		case "list":
			st.listItem = c.SelectAttr("itemType")
			for _, f := range childElements(c) {
				if f.Data == "simpleType" {
					st.listType = parseSimpleType(f)
				}
			}
			if st.listItem == "" && st.listType == nil {
				st.listItem = "xs:string"
			}
		case "union":
			st.union = strings.Fields(c.SelectAttr("memberTypes"))
			for _, f := range childElements(c) {
				if f.Data == "simpleType" {
					st.unionTypes = append(st.unionTypes, parseSimpleType(f))
				}
			}
		}
	}
	return st
}

func occurs(n *xmlquery.Node, name string, def int) int {
	v, ok := attrValue(n, name)
	if !ok {
		return def
	}
	if v == "unbounded" {
		return unbounded
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || i < 0 {
		return def
	}
	return i
}

func parseFloatPtr(v string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &f
}

func parseIntPtr(v string) *int {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	return &i
}

// attrValue distinguishes an empty attribute from a missing one
func attrValue(n *xmlquery.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == name && a.Name.Space == "" {
			return a.Value, true
		}
	}
	return "", false
}

func localName(qname string) string {
	if i := strings.LastIndexByte(qname, ':'); i >= 0 {
		return qname[i+1:]
	}
	return qname
}

func firstElement(n *xmlquery.Node) *xmlquery.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func childElements(n *xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			out = append(out, c)
		}
	}
	return out
}
