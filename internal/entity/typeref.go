package entity

import (
	"regexp"
	"strings"
)

var (
	zeroWidth   = regexp.MustCompile("[\u200B-\u200D\uFEFF]")
	arrayRef    = regexp.MustCompile(`^([A-Z][a-zA-Z0-9_]+)\[\]$`)
	complexRef  = regexp.MustCompile(`^([A-Z][a-zA-Z0-9_]+)$`)
	primitiveTy = map[string]struct{}{
		"string":   {},
		"boolean":  {},
		"int":      {},
		"double":   {},
		"date":     {},
		"datetime": {},
		"long":     {},
	}
)

// ArrayTypeName returns the element type of an array reference such as
// "Layout[]".
func ArrayTypeName(fieldType string) (string, bool) {
	t := strings.TrimSpace(zeroWidth.ReplaceAllString(fieldType, ""))
	m := arrayRef.FindStringSubmatch(t)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ComplexTypeName returns the referenced type of a non-primitive, non-array
// field type. Enumerations are never treated as references.
func ComplexTypeName(fieldType string) (string, bool) {
	if strings.Contains(strings.ToLower(fieldType), "enumeration") {
		return "", false
	}
	base, _, _ := strings.Cut(fieldType, "(")
	base = strings.TrimSpace(zeroWidth.ReplaceAllString(base, ""))
	if _, ok := primitiveTy[strings.ToLower(base)]; ok {
		return "", false
	}
	m := complexRef.FindStringSubmatch(base)
	if m == nil {
		return "", false
	}
	return m[1], true
}
