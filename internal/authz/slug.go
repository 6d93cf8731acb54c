package authz

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Identifier prefixes. Permission ids take the form
// perm-<category>:<slug>, role ids take the form role-<slug>.
const (
	permIDPrefix = "perm-"
	roleIDPrefix = "role-"
)

// slugify lowercases the name, folds it to NFKC form, and collapses
// whitespace runs into the separator so derived identifiers stay stable
// across cosmetic renames.
func slugify(name, sep string) string {
	name = norm.NFKC.String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteString(sep)
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// PermissionID derives the canonical permission identifier.
func PermissionID(category, name string) string {
	return permIDPrefix + slugify(category, "_") + ":" + slugify(name, "_")
}

// RoleID derives the canonical role identifier.
func RoleID(name string) string {
	return roleIDPrefix + slugify(name, "-")
}
