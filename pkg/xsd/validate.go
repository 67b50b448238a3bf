package xsd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

const xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"

// maxDepth bounds type derivation and group nesting
const maxDepth = 64

// Violation is one schema violation in an instance document
type Violation struct {
	Line    int    `json:"line"`
	Element string `json:"element"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: <%s>: %s", v.Line, v.Element, v.Message)
	}
	return fmt.Sprintf("<%s>: %s", v.Element, v.Message)
}

// ValidationErrors is returned when a document does not conform
type ValidationErrors struct {
	Path       string
	Violations []Violation
}

func (e *ValidationErrors) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%d schema violation(s)", len(e.Violations))
	if len(e.Violations) > 0 {
		b.WriteString(": ")
		b.WriteString(e.Violations[0].String())
	}
	return b.String()
}

// Strings returns every violation formatted on one line
func (e *ValidationErrors) Strings() []string {
	out := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		out[i] = v.String()
	}
	return out
}

// Validate parses the document at path and validates it. Documents that
// do not conform yield a *ValidationErrors; I/O and parse failures yield
// other errors.
func (s *Schema) Validate(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	if err := s.ValidateReader(f); err != nil {
		if verr, ok := err.(*ValidationErrors); ok {
			verr.Path = path
			return verr
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// ValidateReader validates the document read from r
func (s *Schema) ValidateReader(r io.Reader) error {
	doc, err := xmlquery.ParseWithOptions(r, xmlquery.ParserOptions{WithLineNumbers: true})
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	root := firstElement(doc)
	if root == nil {
		return fmt.Errorf("document has no root element")
	}

	v := &validator{s: s}
	if decl, ok := s.elements[root.Data]; ok {
		v.element(root, decl, 0)
	} else {
		v.report(root, "no global declaration for root element <%s>", root.Data)
	}

	if len(v.violations) > 0 {
		return &ValidationErrors{Violations: v.violations}
	}
	return nil
}

type validator struct {
	s          *Schema
	violations []Violation
}

func (v *validator) report(n *xmlquery.Node, format string, args ...interface{}) {
	v.violations = append(v.violations, Violation{
		Line:    n.LineNumber,
		Element: n.Data,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validator) element(n *xmlquery.Node, decl *element, depth int) {
	if depth > maxDepth {
		v.report(n, "nesting too deep")
		return
	}
	if decl.ref != "" {
		decl = v.s.elements[localName(decl.ref)]
	}
	if n.NamespaceURI != decl.ns {
		v.report(n, "element is in %s, expected %s", namespaceName(n.NamespaceURI), namespaceName(decl.ns))
	}

	if decl.fixed != nil && strings.TrimSpace(n.InnerText()) != *decl.fixed {
		v.report(n, "value must be %q", *decl.fixed)
	}

	switch {
	case decl.complex != nil:
		v.complexContent(n, decl.complex, depth)
	case decl.simple != nil:
		v.simpleContent(n, func(text string) error { return v.s.checkSimple(text, decl.simple) })
	case decl.typeName != "":
		name := localName(decl.typeName)
		if ct, ok := v.s.complex[name]; ok {
			v.complexContent(n, ct, depth)
		} else if name != "anyType" {
			v.simpleContent(n, func(text string) error { return v.s.checkItem(text, nil, decl.typeName) })
		}
	}
}

func (v *validator) simpleContent(n *xmlquery.Node, check func(string) error) {
	if kids := childElements(n); len(kids) > 0 {
		v.report(n, "element <%s> is not allowed in simple content", kids[0].Data)
		return
	}
	if err := check(n.InnerText()); err != nil {
		v.report(n, "%v", err)
	}
}

func (v *validator) complexContent(n *xmlquery.Node, ct *complexType, depth int) {
	v.attributes(n, ct)

	if textCheck, ok := v.s.textType(ct, 0); ok {
		v.simpleContent(n, textCheck)
		return
	}

	if !v.s.isMixed(ct, 0) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if (c.Type == xmlquery.TextNode || c.Type == xmlquery.CharDataNode) && strings.TrimSpace(c.Data) != "" {
				v.report(n, "character content is not allowed")
				break
			}
		}
	}

	kids := childElements(n)
	content := v.s.effectiveContent(ct, 0)

	m := &matcher{s: v.s, kids: kids, assign: make([]*element, len(kids)), failAt: -1}
	end, ok := 0, true
	if content != nil {
		end, ok = m.match(content, 0, 0)
	}

	if !ok {
		if m.failAt >= 0 && m.failAt < len(kids) {
			v.report(kids[m.failAt], "unexpected element in <%s>, expected %s", n.Data, m.expectation())
		} else {
			v.report(n, "missing required element %s", m.expectation())
		}
		return
	}

	if end < len(kids) {
		if m.failAt == end && len(m.expected) > 0 {
			v.report(kids[end], "unexpected element in <%s>, expected %s", n.Data, m.expectation())
		} else {
			v.report(kids[end], "unexpected element in <%s>", n.Data)
		}
	}

	for i := 0; i < end; i++ {
		if m.assign[i] != nil {
			v.element(kids[i], m.assign[i], depth+1)
		}
	}
}

func (v *validator) attributes(n *xmlquery.Node, ct *complexType) {
	decls, anyAttr := v.s.attributesOf(ct)
	present := make(map[string]bool)

	for _, a := range n.Attr {
		if a.NamespaceURI == "xmlns" || a.NamespaceURI == xsiNamespace ||
			(a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		if a.NamespaceURI != "" {
			continue
		}
		present[a.Name.Local] = true

		decl, ok := decls[a.Name.Local]
		if !ok {
			if !anyAttr {
				v.report(n, "attribute %q is not allowed", a.Name.Local)
			}
			continue
		}
		if decl.fixed != nil && a.Value != *decl.fixed {
			v.report(n, "attribute %q must be %q", a.Name.Local, *decl.fixed)
			continue
		}
		if err := v.s.checkItem(a.Value, decl.simple, decl.typeName); err != nil {
			v.report(n, "attribute %q: %v", a.Name.Local, err)
		}
	}

	names := make([]string, 0, len(decls))
	for name := range decls {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if decls[name].required && !present[name] {
			v.report(n, "missing required attribute %q", name)
		}
	}
}

// attributesOf flattens the attribute declarations of ct, its base types
// and its attribute groups
func (s *Schema) attributesOf(ct *complexType) (map[string]*attribute, bool) {
	out := make(map[string]*attribute)
	anyAttr := false

	var addGroup func(ref string, depth int)
	addAttrs := func(attrs []*attribute) {
		for _, a := range attrs {
			if a.ref == "" {
				out[a.name] = a
				continue
			}
			if g, ok := s.attributes[localName(a.ref)]; ok {
				merged := *g
				merged.required = a.required
				out[g.name] = &merged
			}
		}
	}
	addGroup = func(ref string, depth int) {
		g, ok := s.attrGroups[localName(ref)]
		if !ok || depth > maxDepth {
			return
		}
		addAttrs(g.attrs)
		anyAttr = anyAttr || g.anyAttr
		for _, r := range g.attrRefs {
			addGroup(r, depth+1)
		}
	}

	chain := s.derivationChain(ct)
	for i := len(chain) - 1; i >= 0; i-- {
		addAttrs(chain[i].attrs)
		for _, r := range chain[i].attrRefs {
			addGroup(r, 0)
		}
		anyAttr = anyAttr || chain[i].anyAttr
	}
	return out, anyAttr
}

// derivationChain returns ct followed by its complex base types
func (s *Schema) derivationChain(ct *complexType) []*complexType {
	chain := []*complexType{ct}
	for len(chain) < maxDepth {
		base, ok := s.complex[localName(chain[len(chain)-1].base)]
		if !ok || chain[len(chain)-1].base == "" {
			break
		}
		chain = append(chain, base)
	}
	return chain
}

// textType returns the value check for simple content types
func (s *Schema) textType(ct *complexType, depth int) (func(string) error, bool) {
	if !ct.simpleContent || depth > maxDepth {
		return nil, false
	}
	if base, ok := s.complex[localName(ct.base)]; ok {
		return s.textType(base, depth+1)
	}
	baseName := ct.base
	return func(text string) error { return s.checkItem(text, nil, baseName) }, true
}

func (s *Schema) isMixed(ct *complexType, depth int) bool {
	if ct.mixed || depth > maxDepth {
		return ct.mixed
	}
	if base, ok := s.complex[localName(ct.base)]; ok && ct.extension {
		return s.isMixed(base, depth+1)
	}
	return false
}

// effectiveContent prepends the base content model for extensions
func (s *Schema) effectiveContent(ct *complexType, depth int) *particle {
	if ct.base == "" || !ct.extension || depth > maxDepth {
		return ct.content
	}
	base, ok := s.complex[localName(ct.base)]
	if !ok {
		return ct.content
	}
	bc := s.effectiveContent(base, depth+1)
	switch {
	case bc == nil:
		return ct.content
	case ct.content == nil:
		return bc
	}
	return &particle{kind: particleSequence, children: []*particle{bc, ct.content}, min: 1, max: 1}
}

// matcher assigns child elements to the particles of a content model.
// Matching is greedy with no backtracking across particles, which is
// exact for the deterministic content models XSD requires.
type matcher struct {
	s      *Schema
	kids   []*xmlquery.Node
	assign []*element

	failAt   int
	expected []string
}

func (m *matcher) match(p *particle, i, depth int) (int, bool) {
	if depth > maxDepth {
		return i, false
	}

	start, count := i, 0
	for count < p.max {
		j, ok := m.once(p, i, depth)
		if !ok {
			break
		}
		count++
		if j == i {
			if count < p.min {
				count = p.min
			}
			break
		}
		i = j
	}

	if count < p.min {
		if p.kind == particleElement || p.kind == particleAny {
			m.fail(i, m.names(p, 0))
		}
		return start, false
	}
	return i, true
}

func (m *matcher) once(p *particle, i, depth int) (int, bool) {
	switch p.kind {
	case particleElement:
		if i < len(m.kids) && m.kids[i].Data == m.s.elementName(p.element) {
			m.assign[i] = p.element
			return i + 1, true
		}
		return i, false

	case particleAny:
		if i < len(m.kids) {
			m.assign[i] = nil
			return i + 1, true
		}
		return i, false

	case particleGroupRef:
		g, ok := m.s.groups[localName(p.ref)]
		if !ok {
			return i, false
		}
		return m.match(g, i, depth+1)

	case particleSequence:
		j := i
		for _, c := range p.children {
			var ok bool
			if j, ok = m.match(c, j, depth+1); !ok {
				return i, false
			}
		}
		return j, true

	case particleChoice:
		empty := false
		for _, c := range p.children {
			j, ok := m.match(c, i, depth+1)
			if ok && j > i {
				return j, true
			}
			empty = empty || ok
		}
		return i, empty

	case particleAll:
		used := make([]bool, len(p.children))
		j := i
		for j < len(m.kids) {
			progressed := false
			for k, c := range p.children {
				if used[k] {
					continue
				}
				if nj, ok := m.match(c, j, depth+1); ok && nj > j {
					used[k], j, progressed = true, nj, true
					break
				}
			}
			if !progressed {
				break
			}
		}
		for k, c := range p.children {
			if !used[k] && c.min > 0 {
				m.fail(j, m.names(c, 0))
				return i, false
			}
		}
		return j, true
	}
	return i, false
}

// fail records the furthest position at which a required particle was
// missing
func (m *matcher) fail(at int, names []string) {
	switch {
	case at > m.failAt:
		m.failAt, m.expected = at, append([]string(nil), names...)
	case at == m.failAt:
		for _, n := range names {
			if !contains(m.expected, n) {
				m.expected = append(m.expected, n)
			}
		}
	}
}

func (m *matcher) expectation() string {
	if len(m.expected) == 0 {
		return "nothing"
	}
	return strings.Join(m.expected, " or ")
}

// names lists the elements that can start particle p
func (m *matcher) names(p *particle, depth int) []string {
	if depth > maxDepth {
		return nil
	}
	switch p.kind {
	case particleElement:
		return []string{"<" + m.s.elementName(p.element) + ">"}
	case particleAny:
		return []string{"any element"}
	case particleGroupRef:
		if g, ok := m.s.groups[localName(p.ref)]; ok {
			return m.names(g, depth+1)
		}
	case particleSequence:
		var out []string
		for _, c := range p.children {
			out = append(out, m.names(c, depth+1)...)
			if c.min > 0 {
				break
			}
		}
		return out
	case particleChoice, particleAll:
		var out []string
		for _, c := range p.children {
			out = append(out, m.names(c, depth+1)...)
		}
		return out
	}
	return nil
}

func (s *Schema) elementName(e *element) string {
	if e.ref != "" {
		return localName(e.ref)
	}
	return e.name
}

func namespaceName(ns string) string {
	if ns == "" {
		return "no namespace"
	}
	return fmt.Sprintf("namespace %q", ns)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
