// Package reconcile merges the locally cached directory with the
// cloud-fetched directory into one de-duplicated view. Records from the two
// origins that share a canonical key are the same logical entity and collapse
// into a single entry; local records with no cloud counterpart are tagged
// local-only so callers never hand them to cloud APIs.
package reconcile

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"inkwell/client/internal/identity"
)

// Record is one workspace, folder or document row as the client caches it.
// LocalID is always set for locally created records; CloudID appears after
// the first successful sync. Name and the timestamps are cloud-authoritative;
// Expanded and LastOpenedAt are purely local UI state.
type Record struct {
	LocalID     string        `json:"localId"`
	CloudID     string        `json:"cloudId,omitempty"`
	Kind        identity.Kind `json:"kind"`
	Name        string        `json:"name"`
	ParentID    string        `json:"parentId,omitempty"`
	WorkspaceID string        `json:"workspaceId,omitempty"`
	ContentRef  string        `json:"contentRef,omitempty"`
	CreatedBy   string        `json:"createdBy,omitempty"`
	IsPublic    bool          `json:"isPublic,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt,omitempty"`

	Expanded     bool      `json:"expanded,omitempty"`
	LastOpenedAt time.Time `json:"lastOpenedAt,omitempty"`
}

// CanonicalKey derives the record's origin-independent key: the canonical
// form of CloudID when present, of LocalID otherwise. It is always derived,
// never stored, so it cannot desync from the IDs.
func (r Record) CanonicalKey() string {
	if r.CloudID != "" {
		return identity.ExtractCanonical(r.CloudID)
	}
	return identity.ExtractCanonical(r.LocalID)
}

// Entry is a merged view row. LocalOnly entries have no cloud counterpart and
// are ineligible for cloud-bound operations.
type Entry struct {
	Record
	LocalOnly bool
}

// View is the merged directory. Entries are ordered by canonical key so equal
// inputs produce byte-equal views.
type View struct {
	Entries []Entry
	byKey   map[string]int
}

// Lookup resolves any identifier form (local, cloud, legacy) to its entry.
func (v View) Lookup(id string) (Entry, bool) {
	i, ok := v.byKey[identity.ExtractCanonical(id)]
	if !ok {
		return Entry{}, false
	}
	return v.Entries[i], true
}

// CloudEligible returns the entries that may be referenced in cloud API calls.
func (v View) CloudEligible() []Entry {
	out := make([]Entry, 0, len(v.Entries))
	for _, e := range v.Entries {
		if !e.LocalOnly {
			out = append(out, e)
		}
	}
	return out
}

// LocalOnly returns the entries that exist only on this device.
func (v View) LocalOnly() []Entry {
	var out []Entry
	for _, e := range v.Entries {
		if e.LocalOnly {
			out = append(out, e)
		}
	}
	return out
}

// Records flattens the view back to cache records, e.g. for persisting the
// merged directory.
func (v View) Records() []Record {
	out := make([]Record, len(v.Entries))
	for i, e := range v.Entries {
		out[i] = e.Record
	}
	return out
}

// IsLocalOnly reports whether a single identifier is cloud-ineligible without
// running a full merge.
func IsLocalOnly(id string) bool {
	return identity.IsLocalOnly(id)
}

// Reconciler merges directories. It carries only a logger; merging itself is
// stateless, idempotent and independent of argument order up to the
// documented cloud-wins rule.
type Reconciler struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Reconciler {
	return &Reconciler{log: log.With().Str("component", "reconcile").Logger()}
}

// Merge combines local and cloud records. Matching canonical keys collapse to
// one entry: cloud fields win for anything the cloud is authoritative about,
// local fields win for device-local state. Cloud records never seen locally
// become new entries with a freshly derived local form; local records with no
// cloud match are tagged LocalOnly.
func (rc *Reconciler) Merge(local, cloud []Record) View {
	cloudByKey := make(map[string]Record, len(cloud))
	for _, c := range cloud {
		cloudByKey[c.CanonicalKey()] = c
	}

	consumed := make(map[string]bool, len(cloud))
	entries := make([]Entry, 0, len(local)+len(cloud))

	for _, l := range local {
		key := l.CanonicalKey()
		c, ok := cloudByKey[key]
		if !ok {
			// No cloud match in this merge. A record that already carries a
			// cloud ID stays cloud-backed (it may simply be an offline merge
			// with no cloud input); one without is local-only.
			entries = append(entries, Entry{Record: l, LocalOnly: l.CloudID == ""})
			continue
		}
		consumed[key] = true
		entries = append(entries, Entry{Record: rc.mergeRecord(key, l, c)})
	}

	for _, c := range cloud {
		key := c.CanonicalKey()
		if consumed[key] {
			continue
		}
		// First time this device sees the record: derive its local form.
		r := c
		if r.LocalID == "" {
			if localID, err := identity.ToLocalForm(r.CloudID, r.Kind); err == nil {
				r.LocalID = localID
			} else {
				r.LocalID = r.CloudID
			}
		}
		entries = append(entries, Entry{Record: r})
	}

	sort.Slice(entries, func(i, j int) bool {
		ki, kj := entries[i].CanonicalKey(), entries[j].CanonicalKey()
		if ki != kj {
			return ki < kj
		}
		return entries[i].LocalID < entries[j].LocalID
	})

	byKey := make(map[string]int, len(entries))
	for i, e := range entries {
		byKey[e.CanonicalKey()] = i
	}
	return View{Entries: entries, byKey: byKey}
}

// mergeRecord folds one local/cloud pair. Disagreement on a
// cloud-authoritative field is logged and resolved cloud-wins; it is never an
// error.
func (rc *Reconciler) mergeRecord(key string, l, c Record) Record {
	if l.Name != "" && c.Name != "" && l.Name != c.Name {
		rc.log.Warn().
			Str("key", key).
			Str("local", l.Name).
			Str("cloud", c.Name).
			Msg("reconciliation conflict, cloud wins")
	}

	merged := c
	merged.LocalID = l.LocalID
	if merged.LocalID == "" {
		if localID, err := identity.ToLocalForm(c.CloudID, c.Kind); err == nil {
			merged.LocalID = localID
		} else {
			merged.LocalID = c.CloudID
		}
	}
	if merged.CloudID == "" {
		merged.CloudID = identity.ExtractCanonical(l.LocalID)
	}
	if merged.WorkspaceID == "" {
		merged.WorkspaceID = l.WorkspaceID
	}
	if merged.ContentRef == "" {
		merged.ContentRef = l.ContentRef
	}
	merged.Expanded = l.Expanded
	merged.LastOpenedAt = l.LastOpenedAt
	return merged
}
