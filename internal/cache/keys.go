package cache

import (
	"strings"

	"github.com/google/uuid"
)

// Namespace is one family of cached promo data.
type Namespace string

const (
	NamespaceList       Namespace = "list"
	NamespaceDetail     Namespace = "detail"
	NamespaceCode       Namespace = "code"
	NamespaceValidation Namespace = "validation"
	NamespacePlans      Namespace = "plans"
	NamespaceUsers      Namespace = "users"
	NamespaceSearch     Namespace = "search"
	NamespaceStats      Namespace = "stats"
)

// Namespaces lists every namespace the key builder knows about.
var Namespaces = []Namespace{
	NamespaceList,
	NamespaceDetail,
	NamespaceCode,
	NamespaceValidation,
	NamespacePlans,
	NamespaceUsers,
	NamespaceSearch,
	NamespaceStats,
}

// PerPromoCode reports whether keys in the namespace are scoped to a single promo code id.
func (n Namespace) PerPromoCode() bool {
	switch n {
	case NamespaceDetail, NamespaceValidation, NamespacePlans, NamespaceUsers:
		return true
	default:
		return false
	}
}

// Keys builds cache keys and deletion patterns under a fixed prefix.
// Keys look like "{prefix}:{namespace}:{segment}:...".
type Keys struct {
	prefix string
}

// NewKeys returns a key builder for prefix.
func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

func (k Keys) key(ns Namespace, parts ...string) string {
	var b strings.Builder
	b.WriteString(k.prefix)
	b.WriteByte(':')
	b.WriteString(string(ns))
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// Validation is the key of a cached validation result.
func (k Keys) Validation(promoCodeID, userID, planID uuid.UUID) string {
	return k.key(NamespaceValidation, promoCodeID.String(), userID.String(), planID.String())
}

// Code is the key mapping a normalised code string to its promo code id.
func (k Keys) Code(code string) string {
	return k.key(NamespaceCode, code)
}

// Detail is the key of a cached promo code record.
func (k Keys) Detail(promoCodeID uuid.UUID) string {
	return k.key(NamespaceDetail, promoCodeID.String())
}

// Plans is the key of a promo code's cached applicable plans.
func (k Keys) Plans(promoCodeID uuid.UUID) string {
	return k.key(NamespacePlans, promoCodeID.String())
}

// Users is the key of a promo code's cached applicable users.
func (k Keys) Users(promoCodeID uuid.UUID) string {
	return k.key(NamespaceUsers, promoCodeID.String())
}

// Pattern matches every key in ns.
func (k Keys) Pattern(ns Namespace) string {
	return k.key(ns, "*")
}

// PromoPattern matches the keys in ns that belong to promoCodeID. Namespaces
// that are not keyed by promo code id fall back to the whole namespace.
func (k Keys) PromoPattern(ns Namespace, promoCodeID uuid.UUID) string {
	if !ns.PerPromoCode() {
		return k.Pattern(ns)
	}
	return k.key(ns, promoCodeID.String()) + "*"
}

// CodePattern matches the lookup key of a single code.
func (k Keys) CodePattern(code string) string {
	return k.key(NamespaceCode, escapeGlob(code))
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
