// Package identity converts between the two identifier namespaces the client
// lives with: prefixed local IDs used in on-device storage and bare UUIDs used
// across the backend API. The canonical key (the bare UUID) is the single
// origin-independent name for a logical entity; every table and registry in
// the client keys on it.
package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies what an identifier names.
type Kind string

const (
	KindWorkspace Kind = "workspace"
	KindFolder    Kind = "folder"
	KindDocument  Kind = "document"
	KindUser      Kind = "user"
	KindGuest     Kind = "guest"
	KindUnknown   Kind = "unknown"
)

var prefixes = map[Kind]string{
	KindWorkspace: "ws_",
	KindFolder:    "fld_",
	KindDocument:  "doc_",
	KindUser:      "usr_",
	KindGuest:     "guest_",
}

// legacyLiterals are pre-UUID fixed names that still appear in old on-device
// stores. They are never parsed as UUIDs; callers migrate them.
var legacyLiterals = map[string]bool{
	"guest-workspace": true,
	"tauri-workspace": true,
}

// ErrMalformedIdentifier is returned when an identifier already carries a
// prefix belonging to a different kind, e.g. a doc_ ID handed to a
// workspace conversion. Silently double-wrapping such IDs corrupts the
// directory, so the mismatch is rejected instead.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// New generates a fresh local identifier of the given kind. Unknown kinds get
// a bare UUID.
func New(kind Kind) string {
	return prefixes[kind] + uuid.NewString()
}

// Prefix returns the local-ID prefix for a kind, or "" if it has none.
func Prefix(kind Kind) string {
	return prefixes[kind]
}

// ExtractCanonical returns the bare UUID inside id: the suffix after the first
// underscore for prefixed IDs, or id itself when it is already a bare UUID.
// Anything else (legacy names, timestamp IDs, empty input) comes back
// unchanged; use Classify and IsLegacy to detect those cases explicitly.
func ExtractCanonical(id string) string {
	if id == "" {
		return id
	}
	if isUUIDv4(id) {
		return id
	}
	i := strings.Index(id, "_")
	if i < 0 {
		return id
	}
	if suffix := id[i+1:]; isUUIDv4(suffix) {
		return suffix
	}
	return id
}

// ToCloudForm strips the kind's local prefix, yielding the bare-UUID wire
// form. Already-bare input passes through unchanged. An ID carrying a
// different kind's prefix is rejected with ErrMalformedIdentifier.
func ToCloudForm(id string, kind Kind) (string, error) {
	if id == "" {
		return id, nil
	}
	if p := prefixes[kind]; p != "" && strings.HasPrefix(id, p) {
		return strings.TrimPrefix(id, p), nil
	}
	if k := prefixOf(id); k != KindUnknown && k != kind {
		return "", ErrMalformedIdentifier
	}
	return id, nil
}

// ToLocalForm prepends the kind's prefix unless it is already present, so the
// conversion is idempotent and never double-prefixes. An ID carrying a
// different kind's prefix is rejected with ErrMalformedIdentifier.
func ToLocalForm(id string, kind Kind) (string, error) {
	if id == "" {
		return id, nil
	}
	if p := prefixes[kind]; p != "" && strings.HasPrefix(id, p) {
		return id, nil
	}
	if k := prefixOf(id); k != KindUnknown && k != kind {
		return "", ErrMalformedIdentifier
	}
	return prefixes[kind] + id, nil
}

// Classify maps an identifier to its kind by prefix. A bare UUID with no
// prefix is a document: the backend's wire format uses bare document IDs, so
// that is the client's default reading of an unprefixed UUID.
func Classify(id string) Kind {
	if id == "" {
		return KindUnknown
	}
	if k := prefixOf(id); k != KindUnknown {
		return k
	}
	if isUUIDv4(id) {
		return KindDocument
	}
	return KindUnknown
}

// IsLegacy reports whether id predates the UUID scheme: a known fixed literal,
// a folder-/doc- slug ID, or a prefixed ID whose suffix is not a UUID.
func IsLegacy(id string) bool {
	if id == "" {
		return false
	}
	if legacyLiterals[id] {
		return true
	}
	if strings.HasPrefix(id, "folder-") || strings.HasPrefix(id, "doc-") {
		return true
	}
	if k := prefixOf(id); k != KindUnknown {
		return !isUUIDv4(strings.TrimPrefix(id, prefixes[k]))
	}
	return false
}

// Migrate mints a replacement identifier of the given kind for a legacy ID.
// Nothing of the legacy string is preserved; the caller persists the
// legacy-to-new mapping at the point of migration.
func Migrate(legacyID string, kind Kind) string {
	_ = legacyID
	return New(kind)
}

// IsLocalOnly reports whether id cannot name a cloud entity: no UUID can be
// extracted from it, so it must never be sent to a cloud API that expects a
// cloud-recognized identifier.
func IsLocalOnly(id string) bool {
	return !isUUIDv4(ExtractCanonical(id))
}

// SameEntity reports whether two identifiers name the same logical entity,
// comparing canonical keys rather than raw strings so local and cloud forms
// of one entity compare equal.
func SameEntity(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return ExtractCanonical(a) == ExtractCanonical(b)
}

func prefixOf(id string) Kind {
	// guest_ before usr_ etc. is irrelevant: prefixes are disjoint.
	for k, p := range prefixes {
		if strings.HasPrefix(id, p) {
			return k
		}
	}
	return KindUnknown
}

// isUUIDv4 accepts only the canonical 36-character lowercase-or-uppercase
// hex-and-dashes form, version 4. Timestamp IDs and legacy slugs fail here.
func isUUIDv4(s string) bool {
	if len(s) != 36 {
		return false
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4
}
