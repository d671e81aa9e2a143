package reconcile

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inkwell/client/internal/identity"
)

func newReconciler() *Reconciler {
	return New(zerolog.Nop())
}

func TestMergeCollapsesSharedCanonicalKey(t *testing.T) {
	u := "7f97d2aa-33cc-4a41-9a8e-2f4f8c93c9a5"
	local := []Record{{
		LocalID:      "doc_" + u,
		Kind:         identity.KindDocument,
		Name:         "Notes",
		Expanded:     true,
		LastOpenedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}}
	cloud := []Record{{
		CloudID:   u,
		Kind:      identity.KindDocument,
		Name:      "Notes",
		UpdatedAt: time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC),
	}}

	view := newReconciler().Merge(local, cloud)
	if len(view.Entries) != 1 {
		t.Fatalf("got %d entries, want exactly 1", len(view.Entries))
	}
	e := view.Entries[0]
	if e.LocalID != "doc_"+u {
		t.Errorf("LocalID = %q", e.LocalID)
	}
	if e.CloudID != u {
		t.Errorf("CloudID = %q, want %q", e.CloudID, u)
	}
	if e.LocalOnly {
		t.Error("synced record tagged LocalOnly")
	}
	if !e.Expanded {
		t.Error("local UI state lost in merge")
	}
	if !e.UpdatedAt.Equal(cloud[0].UpdatedAt) {
		t.Error("cloud timestamp lost in merge")
	}
}

func TestMergeCloudWinsOnConflict(t *testing.T) {
	u := uuid.NewString()
	local := []Record{{LocalID: "doc_" + u, Kind: identity.KindDocument, Name: "Old title"}}
	cloud := []Record{{CloudID: u, Kind: identity.KindDocument, Name: "New title"}}

	view := newReconciler().Merge(local, cloud)
	if got := view.Entries[0].Name; got != "New title" {
		t.Errorf("Name = %q, want cloud value", got)
	}
}

func TestMergeTagsLocalOnly(t *testing.T) {
	u := uuid.NewString()
	local := []Record{
		{LocalID: "ws_1700000000123_k3j2h", Kind: identity.KindWorkspace, Name: "Scratch"},
		{LocalID: "doc_" + u, Kind: identity.KindDocument, Name: "Synced"},
	}
	cloud := []Record{{CloudID: u, Kind: identity.KindDocument, Name: "Synced"}}

	view := newReconciler().Merge(local, cloud)
	if len(view.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(view.Entries))
	}

	localOnly := view.LocalOnly()
	if len(localOnly) != 1 || localOnly[0].LocalID != "ws_1700000000123_k3j2h" {
		t.Fatalf("LocalOnly = %+v", localOnly)
	}
	for _, e := range view.CloudEligible() {
		if e.LocalID == "ws_1700000000123_k3j2h" {
			t.Fatal("timestamp-shaped local ID leaked into the cloud-eligible set")
		}
	}
}

func TestMergeAdoptsNewCloudRecords(t *testing.T) {
	u := uuid.NewString()
	cloud := []Record{{CloudID: u, Kind: identity.KindFolder, Name: "Shared with me"}}

	view := newReconciler().Merge(nil, cloud)
	if len(view.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(view.Entries))
	}
	e := view.Entries[0]
	if e.LocalID != "fld_"+u {
		t.Errorf("LocalID = %q, want derived local form", e.LocalID)
	}
	if e.LocalOnly {
		t.Error("cloud record tagged LocalOnly")
	}
}

func TestMergeIdempotent(t *testing.T) {
	u1, u2, u3 := uuid.NewString(), uuid.NewString(), uuid.NewString()
	local := []Record{
		{LocalID: "doc_" + u1, Kind: identity.KindDocument, Name: "A", Expanded: true},
		{LocalID: "fld_" + u2, Kind: identity.KindFolder, Name: "B"},
		{LocalID: "ws_1700000000123_zz", Kind: identity.KindWorkspace, Name: "Scratch"},
	}
	cloud := []Record{
		{CloudID: u1, Kind: identity.KindDocument, Name: "A renamed"},
		{CloudID: u3, Kind: identity.KindDocument, Name: "C"},
	}

	rc := newReconciler()
	once := rc.Merge(local, cloud)
	twice := rc.Merge(once.Records(), cloud)

	if !reflect.DeepEqual(once.Entries, twice.Entries) {
		t.Fatalf("merge not idempotent:\nonce:  %+v\ntwice: %+v", once.Entries, twice.Entries)
	}
}

func TestLookupAcceptsEitherForm(t *testing.T) {
	u := uuid.NewString()
	view := newReconciler().Merge(
		[]Record{{LocalID: "doc_" + u, Kind: identity.KindDocument, Name: "N"}},
		[]Record{{CloudID: u, Kind: identity.KindDocument, Name: "N"}},
	)

	if _, ok := view.Lookup("doc_" + u); !ok {
		t.Error("lookup by local form failed")
	}
	if _, ok := view.Lookup(u); !ok {
		t.Error("lookup by cloud form failed")
	}
	if _, ok := view.Lookup(uuid.NewString()); ok {
		t.Error("lookup of unknown key succeeded")
	}
}

func TestCanonicalKeyDerivation(t *testing.T) {
	u := uuid.NewString()
	fromLocal := Record{LocalID: "doc_" + u}
	fromCloud := Record{LocalID: "doc_" + u, CloudID: u}
	if fromLocal.CanonicalKey() != u || fromCloud.CanonicalKey() != u {
		t.Fatalf("canonical keys differ: %q vs %q", fromLocal.CanonicalKey(), fromCloud.CanonicalKey())
	}
}

func TestIsLocalOnly(t *testing.T) {
	if !IsLocalOnly("ws_1700000000123_k3j2h") {
		t.Error("timestamp workspace ID should be local-only")
	}
	if IsLocalOnly("doc_" + uuid.NewString()) {
		t.Error("UUID-backed ID should be cloud-eligible")
	}
}
