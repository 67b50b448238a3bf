package xsd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	reInteger  = regexp.MustCompile(`^[+-]?\d+$`)
	reDecimal  = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	reFloat    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	reDate     = regexp.MustCompile(`^(-?\d{4,}-\d{2}-\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	reDateTime = regexp.MustCompile(`^(-?\d{4,}-\d{2}-\d{2})T(\d{2}:\d{2}:\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	reTime     = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	reGYear    = regexp.MustCompile(`^-?\d{4,}(Z|[+-]\d{2}:\d{2})?$`)
	reDuration = regexp.MustCompile(`^-?P(\d+Y)?(\d+M)?(\d+D)?(T(\d+H)?(\d+M)?(\d+(\.\d+)?S)?)?$`)
)

// builtins maps built-in type local names to their lexical check. A nil
// check accepts any value.
var builtins = map[string]func(string) error{
	"anyType":            nil,
	"anySimpleType":      nil,
	"string":             nil,
	"normalizedString":   nil,
	"token":              nil,
	"language":           nil,
	"Name":               nil,
	"NCName":             nil,
	"NMTOKEN":            nil,
	"NMTOKENS":           nil,
	"ID":                 nil,
	"IDREF":              nil,
	"IDREFS":             nil,
	"ENTITY":             nil,
	"ENTITIES":           nil,
	"QName":              nil,
	"NOTATION":           nil,
	"anyURI":             nil,
	"gYearMonth":         nil,
	"gMonth":             nil,
	"gMonthDay":          nil,
	"gDay":               nil,
	"boolean":            checkBoolean,
	"decimal":            checkPattern(reDecimal, "decimal"),
	"float":              checkFloat,
	"double":             checkFloat,
	"integer":            checkPattern(reInteger, "integer"),
	"nonNegativeInteger": checkSign(false, true),
	"positiveInteger":    checkSign(false, false),
	"nonPositiveInteger": checkSign(true, true),
	"negativeInteger":    checkSign(true, false),
	"long":               checkInt(64),
	"int":                checkInt(32),
	"short":              checkInt(16),
	"byte":               checkInt(8),
	"unsignedLong":       checkUint(64),
	"unsignedInt":        checkUint(32),
	"unsignedShort":      checkUint(16),
	"unsignedByte":       checkUint(8),
	"date":               checkDate,
	"dateTime":           checkDateTime,
	"time":               checkTime,
	"gYear":              checkPattern(reGYear, "gYear"),
	"duration":           checkDuration,
	"hexBinary":          checkHex,
	"base64Binary":       checkBase64,
}

// preserveWhitespace lists the built-ins whose values are not collapsed
var preserveWhitespace = map[string]bool{"string": true, "anySimpleType": true, "anyType": true}

func isBuiltin(qname string) bool {
	_, ok := builtins[localName(qname)]
	return ok
}

// checkBuiltin validates value against a built-in type
func checkBuiltin(value, qname string) error {
	name := localName(qname)
	check, ok := builtins[name]
	if !ok || check == nil {
		return nil
	}
	if err := check(collapse(value)); err != nil {
		return fmt.Errorf("value %q is not a valid %s: %w", value, name, err)
	}
	return nil
}

// collapse applies the XSD collapse whitespace rule
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func checkBoolean(v string) error {
	switch v {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("want true, false, 1 or 0")
}

func checkPattern(re *regexp.Regexp, what string) func(string) error {
	return func(v string) error {
		if !re.MatchString(v) {
			return fmt.Errorf("malformed %s", what)
		}
		return nil
	}
}

func checkFloat(v string) error {
	switch v {
	case "INF", "+INF", "-INF", "NaN":
		return nil
	}
	if !reFloat.MatchString(v) {
		return fmt.Errorf("malformed number")
	}
	return nil
}

// checkSign builds the check for the sign-restricted integer types
func checkSign(negative, zeroAllowed bool) func(string) error {
	return func(v string) error {
		if !reInteger.MatchString(v) {
			return fmt.Errorf("malformed integer")
		}
		digits := strings.TrimLeft(v, "+-")
		isZero := strings.Trim(digits, "0") == ""
		isNeg := strings.HasPrefix(v, "-") && !isZero

		switch {
		case isZero && !zeroAllowed:
			return fmt.Errorf("zero is out of range")
		case isZero:
			return nil
		case negative && !isNeg:
			return fmt.Errorf("must be negative")
		case !negative && isNeg:
			return fmt.Errorf("must not be negative")
		}
		return nil
	}
}

func checkInt(bits int) func(string) error {
	return func(v string) error {
		if _, err := strconv.ParseInt(v, 10, bits); err != nil {
			return fmt.Errorf("not a %d-bit integer", bits)
		}
		return nil
	}
}

func checkUint(bits int) func(string) error {
	return func(v string) error {
		if _, err := strconv.ParseUint(strings.TrimPrefix(v, "+"), 10, bits); err != nil {
			return fmt.Errorf("not an unsigned %d-bit integer", bits)
		}
		return nil
	}
}

func checkDate(v string) error {
	m := reDate.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("want YYYY-MM-DD")
	}
	return checkCalendar(m[1])
}

func checkDateTime(v string) error {
	m := reDateTime.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("want YYYY-MM-DDThh:mm:ss")
	}
	if err := checkCalendar(m[1]); err != nil {
		return err
	}
	return checkClock(m[2])
}

func checkTime(v string) error {
	m := reTime.FindStringSubmatch(v)
	if m == nil {
		return fmt.Errorf("want hh:mm:ss")
	}
	return checkClock(m[1])
}

func checkCalendar(date string) error {
	if strings.HasPrefix(date, "-") || len(date) != len("2006-01-02") {
		return nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("no such date")
	}
	return nil
}

func checkClock(clock string) error {
	// 24:00:00 is the only valid end-of-day form
	if clock == "24:00:00" {
		return nil
	}
	if _, err := time.Parse("15:04:05", clock); err != nil {
		return fmt.Errorf("no such time of day")
	}
	return nil
}

func checkDuration(v string) error {
	if !reDuration.MatchString(v) || strings.HasSuffix(v, "P") || strings.HasSuffix(v, "T") {
		return fmt.Errorf("malformed duration")
	}
	return nil
}

func checkHex(v string) error {
	if _, err := hex.DecodeString(v); err != nil {
		return fmt.Errorf("malformed hex")
	}
	return nil
}

func checkBase64(v string) error {
	if _, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(v, " ", "")); err != nil {
		return fmt.Errorf("malformed base64")
	}
	return nil
}

// checkSimple validates value against a user-defined simple type
func (s *Schema) checkSimple(value string, st *simpleType) error {
	if st.listItem != "" || st.listType != nil {
		items := strings.Fields(value)
		for _, item := range items {
			if err := s.checkItem(item, st.listType, st.listItem); err != nil {
				return err
			}
		}
		return checkLength(len(items), st, "items")
	}

	if len(st.union) > 0 || len(st.unionTypes) > 0 {
		for _, m := range st.unionTypes {
			if s.checkSimple(value, m) == nil {
				return nil
			}
		}
		for _, m := range st.union {
			if isBuiltin(m) && checkBuiltin(value, m) == nil {
				return nil
			}
		}
		return fmt.Errorf("value %q matches no member of the union", value)
	}

	if err := s.checkItem(value, st.baseType, st.base); err != nil {
		return err
	}

	v := value
	if !preserveWhitespace[s.rootBuiltin(st)] {
		v = collapse(value)
	}

	if len(st.enums) > 0 {
		found := false
		for _, e := range st.enums {
			if v == e || value == e {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("value %q is not one of %s", value, strings.Join(st.enums, ", "))
		}
	}

	for _, re := range st.compiled {
		if !re.MatchString(v) {
			return fmt.Errorf("value %q does not match pattern %s", value, strings.TrimSuffix(strings.TrimPrefix(re.String(), "^(?:"), ")$"))
		}
	}

	if st.minIncl != nil || st.maxIncl != nil || st.minExcl != nil || st.maxExcl != nil {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("value %q is not numeric", value)
		}
		switch {
		case st.minIncl != nil && f < *st.minIncl:
			return fmt.Errorf("value %q is below the minimum %v", value, *st.minIncl)
		case st.maxIncl != nil && f > *st.maxIncl:
			return fmt.Errorf("value %q is above the maximum %v", value, *st.maxIncl)
		case st.minExcl != nil && f <= *st.minExcl:
			return fmt.Errorf("value %q must be greater than %v", value, *st.minExcl)
		case st.maxExcl != nil && f >= *st.maxExcl:
			return fmt.Errorf("value %q must be less than %v", value, *st.maxExcl)
		}
	}

	return checkLength(utf8.RuneCountInString(v), st, "characters")
}

func (s *Schema) checkItem(value string, st *simpleType, builtin string) error {
	if st != nil {
		return s.checkSimple(value, st)
	}
	if builtin == "" {
		return nil
	}
	if named, ok := s.simple[localName(builtin)]; ok && !isBuiltin(builtin) {
		return s.checkSimple(value, named)
	}
	return checkBuiltin(value, builtin)
}

func checkLength(n int, st *simpleType, unit string) error {
	switch {
	case st.length != nil && n != *st.length:
		return fmt.Errorf("length %d %s, want exactly %d", n, unit, *st.length)
	case st.minLength != nil && n < *st.minLength:
		return fmt.Errorf("length %d %s, want at least %d", n, unit, *st.minLength)
	case st.maxLength != nil && n > *st.maxLength:
		return fmt.Errorf("length %d %s, want at most %d", n, unit, *st.maxLength)
	}
	return nil
}

// rootBuiltin follows the restriction chain down to its built-in base
func (s *Schema) rootBuiltin(st *simpleType) string {
	for depth := 0; st != nil && depth < 32; depth++ {
		if st.baseType != nil {
			st = st.baseType
			continue
		}
		return localName(st.base)
	}
	return ""
}
