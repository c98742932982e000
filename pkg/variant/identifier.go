package variant

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
)

// IdentifierLookup answers whether an identifier is already taken in some scope
// 識別子が既に使用されているかを判定する
type IdentifierLookup interface {
	Contains(identifier string) bool
}

// IdentifierSet is an in-memory IdentifierLookup
type IdentifierSet map[string]struct{}

// NewIdentifierSet builds a set from the non-blank, trimmed identifiers given
func NewIdentifierSet(identifiers ...string) IdentifierSet {
	s := make(IdentifierSet, len(identifiers))
	for _, id := range identifiers {
		s.Add(id)
	}
	return s
}

// Add inserts a trimmed, non-blank identifier
func (s IdentifierSet) Add(identifier string) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Contains reports an exact, case-sensitive match
func (s IdentifierSet) Contains(identifier string) bool {
	if s == nil {
		return false
	}
	_, ok := s[identifier]
	return ok
}

// Clone copies the set
func (s IdentifierSet) Clone() IdentifierSet {
	c := make(IdentifierSet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// LookupFunc adapts a function to IdentifierLookup
type LookupFunc func(identifier string) bool

func (f LookupFunc) Contains(identifier string) bool {
	if f == nil {
		return false
	}
	return f(identifier)
}

// ValidateIdentifier validates a single unit identifier and returns it trimmed
// 単一の個体識別子を検証し、前後の空白を除去して返す
//
// inParent holds identifiers already used by any variant of the same product.
// global is consulted for IMEI-class identifiers only. Either lookup may be nil.
func ValidateIdentifier(identifier string, inParent, global IdentifierLookup, kind IdentifierKind) (string, error) {
	if err := ValidateIdentifierKind(kind); err != nil {
		return "", err
	}

	id := strings.TrimSpace(identifier)
	if id == "" {
		return "", NewIdentifierError(identifier, kind, ErrEmptyIdentifier)
	}

	if kind == IdentifierKindIMEI && utf8.RuneCountInString(id) < MinIMEILength {
		return "", NewIdentifierError(id, kind, ErrTooShort)
	}

	if inParent != nil && inParent.Contains(id) {
		return "", NewIdentifierError(id, kind, ErrDuplicateInParent)
	}

	// グローバル一意性はIMEIのみ
	if kind == IdentifierKindIMEI && global != nil && global.Contains(id) {
		return "", NewIdentifierError(id, kind, ErrDuplicateGlobal)
	}

	return id, nil
}

var bulkSeparators = regexp.MustCompile(`[\r\n,;]+`)

// ParseBulkIdentifiers splits pasted text on newlines, commas and semicolons
// 一括入力テキストを改行・カンマ・セミコロンで分割
//
// The result is trimmed, blank-free and deduplicated in first-seen order;
// removed repeats are returned separately so the caller can warn about them.
func ParseBulkIdentifiers(text string) (identifiers []string, duplicates []string) {
	parts := lo.Map(bulkSeparators.Split(text, -1), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	parts = lo.Compact(parts)

	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if _, ok := seen[p]; ok {
			duplicates = append(duplicates, p)
			continue
		}
		seen[p] = struct{}{}
		identifiers = append(identifiers, p)
	}
	return identifiers, duplicates
}
