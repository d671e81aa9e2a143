// Package app wires the identity, reconciliation, access and registry layers
// into the operations the editor shell calls: refresh the directory, open and
// close documents, snapshot and export them.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"inkwell/client/internal/access"
	"inkwell/client/internal/collab"
	"inkwell/client/internal/export"
	"inkwell/client/internal/identity"
	"inkwell/client/internal/localstore"
	"inkwell/client/internal/reconcile"
	"inkwell/client/internal/registry"
	"inkwell/client/internal/session"
	"inkwell/client/internal/snapshot"
)

// Directory is the cloud directory surface the service consumes. The HTTP
// client implements it; tests substitute a fake.
type Directory interface {
	ListWorkspaces(ctx context.Context) ([]reconcile.Record, error)
	ListFolders(ctx context.Context, workspaceID string) ([]reconcile.Record, error)
	ListDocuments(ctx context.Context, workspaceID string) ([]reconcile.Record, error)
	ListShares(ctx context.Context, documentID string) ([]access.Share, error)
	ListMembers(ctx context.Context, workspaceID string) ([]access.Member, error)
}

// DirectorySnapshot is the merged three-family view of the workspace tree.
type DirectorySnapshot struct {
	Workspaces reconcile.View
	Folders    reconcile.View
	Documents  reconcile.View
}

// Lookup resolves an identifier of any form across the three families.
func (d DirectorySnapshot) Lookup(id string) (reconcile.Entry, bool) {
	for _, view := range []reconcile.View{d.Documents, d.Folders, d.Workspaces} {
		if entry, ok := view.Lookup(id); ok {
			return entry, ok
		}
	}
	return reconcile.Entry{}, false
}

// Service coordinates one client process's view of the workspace.
type Service struct {
	store      *localstore.Store
	dir        Directory
	provider   collab.Provider
	registry   *registry.Registry
	reconciler *reconcile.Reconciler
	sessions   *session.Controller
	snapshots  *snapshot.Service
	renderer   *export.Renderer
	log        zerolog.Logger
}

func New(
	store *localstore.Store,
	dir Directory,
	provider collab.Provider,
	reg *registry.Registry,
	sessions *session.Controller,
	snapshots *snapshot.Service,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:      store,
		dir:        dir,
		provider:   provider,
		registry:   reg,
		reconciler: reconcile.New(log),
		sessions:   sessions,
		snapshots:  snapshots,
		renderer:   export.NewRenderer(),
		log:        log.With().Str("component", "app").Logger(),
	}
}

// RefreshDirectory fetches the cloud directory, merges it with the local
// cache and persists the merged records. The returned snapshot is the
// de-duplicated view the UI renders.
func (s *Service) RefreshDirectory(ctx context.Context) (DirectorySnapshot, error) {
	cloudWorkspaces, err := s.dir.ListWorkspaces(ctx)
	if err != nil {
		return DirectorySnapshot{}, fmt.Errorf("fetch workspaces: %w", err)
	}

	var cloudFolders, cloudDocuments []reconcile.Record
	for _, ws := range cloudWorkspaces {
		folders, err := s.dir.ListFolders(ctx, ws.CloudID)
		if err != nil {
			return DirectorySnapshot{}, fmt.Errorf("fetch folders for %s: %w", ws.CloudID, err)
		}
		cloudFolders = append(cloudFolders, folders...)

		documents, err := s.dir.ListDocuments(ctx, ws.CloudID)
		if err != nil {
			return DirectorySnapshot{}, fmt.Errorf("fetch documents for %s: %w", ws.CloudID, err)
		}
		cloudDocuments = append(cloudDocuments, documents...)
	}

	snap := DirectorySnapshot{}
	for _, family := range []struct {
		table string
		cloud []reconcile.Record
		dest  *reconcile.View
	}{
		{localstore.TableWorkspaces, cloudWorkspaces, &snap.Workspaces},
		{localstore.TableFolders, cloudFolders, &snap.Folders},
		{localstore.TableDocuments, cloudDocuments, &snap.Documents},
	} {
		local, err := localstore.ListInto[reconcile.Record](ctx, s.store, family.table)
		if err != nil {
			return DirectorySnapshot{}, fmt.Errorf("load local %s: %w", family.table, err)
		}
		view := s.reconciler.Merge(local, family.cloud)
		if err := s.persistView(ctx, family.table, view); err != nil {
			return DirectorySnapshot{}, err
		}
		*family.dest = view
	}
	return snap, nil
}

// LocalDirectory builds the directory snapshot from the on-device cache
// alone, the offline path.
func (s *Service) LocalDirectory(ctx context.Context) (DirectorySnapshot, error) {
	snap := DirectorySnapshot{}
	for _, family := range []struct {
		table string
		dest  *reconcile.View
	}{
		{localstore.TableWorkspaces, &snap.Workspaces},
		{localstore.TableFolders, &snap.Folders},
		{localstore.TableDocuments, &snap.Documents},
	} {
		local, err := localstore.ListInto[reconcile.Record](ctx, s.store, family.table)
		if err != nil {
			return DirectorySnapshot{}, fmt.Errorf("load local %s: %w", family.table, err)
		}
		*family.dest = s.reconciler.Merge(local, nil)
	}
	return snap, nil
}

// CreateDocument creates a locally-owned document record with a fresh local
// identifier. It becomes cloud-backed on the first sync that returns it.
func (s *Service) CreateDocument(ctx context.Context, name, workspaceID string) (reconcile.Record, error) {
	record := reconcile.Record{
		LocalID:     identity.New(identity.KindDocument),
		Kind:        identity.KindDocument,
		Name:        name,
		WorkspaceID: workspaceID,
		CreatedBy:   s.sessions.CurrentUser(),
	}
	if err := s.store.Put(ctx, localstore.TableDocuments, record.CanonicalKey(), record); err != nil {
		return reconcile.Record{}, err
	}
	return record, nil
}

// OpenDocument resolves any identifier form to its canonical record, gates
// cloud-backed documents through access resolution, and returns the live
// handle. Two opens of the same logical document — one by local ID, one by
// cloud ID — share one instance.
func (s *Service) OpenDocument(ctx context.Context, id string) (*registry.Handle, error) {
	snap, err := s.LocalDirectory(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := snap.Lookup(id)
	if !ok {
		return nil, notFound("document not found: " + id)
	}
	if entry.Kind != identity.KindDocument {
		return nil, notFound("not a document: " + id)
	}

	if !entry.LocalOnly && entry.CloudID != "" {
		decision, err := s.resolveAccess(ctx, entry.Record)
		if err != nil {
			return nil, err
		}
		if !decision.Granted {
			return nil, accessDenied("no access to document " + entry.CloudID)
		}
	}

	key := entry.CanonicalKey()
	handle, err := s.registry.Acquire(ctx, key, func(ctx context.Context) (any, error) {
		return s.provider.Open(ctx, key)
	})
	if err != nil {
		return nil, fmt.Errorf("open collaborative document %s: %w", key, err)
	}
	return handle, nil
}

// CloseDocument releases one borrowed reference on the document's handle.
func (s *Service) CloseDocument(id string) bool {
	return s.registry.Release(identity.ExtractCanonical(id))
}

// resolveAccess builds the grant context for one cloud-backed document and
// evaluates it. Denial comes back as a granted=false decision, not an error.
func (s *Service) resolveAccess(ctx context.Context, record reconcile.Record) (access.Decision, error) {
	userID := s.sessions.CurrentUser()
	if userID == "" && !record.IsPublic {
		return access.Decision{}, unauthenticated("sign in to open synced documents")
	}

	shares, err := s.dir.ListShares(ctx, record.CloudID)
	if err != nil {
		return access.Decision{}, fmt.Errorf("fetch shares: %w", err)
	}
	var members []access.Member
	if record.WorkspaceID != "" {
		members, err = s.dir.ListMembers(ctx, identity.ExtractCanonical(record.WorkspaceID))
		if err != nil {
			return access.Decision{}, fmt.Errorf("fetch members: %w", err)
		}
	}

	return access.Resolve(access.GrantContext{
		DocumentCreatorID: record.CreatedBy,
		CurrentUserID:     userID,
		IsPublic:          record.IsPublic,
		Shares:            shares,
		Members:           members,
	}), nil
}

// SnapshotDocument records a version of the document content in its local
// history.
func (s *Service) SnapshotDocument(ctx context.Context, id string, markdown []byte, message string) (snapshot.Info, error) {
	snap, err := s.LocalDirectory(ctx)
	if err != nil {
		return snapshot.Info{}, err
	}
	entry, ok := snap.Lookup(id)
	if !ok {
		return snapshot.Info{}, notFound("document not found: " + id)
	}
	key := entry.CanonicalKey()
	author := s.sessions.CurrentUser()
	if err := s.snapshots.Ensure(key, markdown, author); err != nil {
		return snapshot.Info{}, err
	}
	return s.snapshots.Save(key, markdown, author, message)
}

// ExportDocument renders the document content to a standalone HTML page,
// titled from the directory record.
func (s *Service) ExportDocument(ctx context.Context, id string, markdown []byte) ([]byte, error) {
	snap, err := s.LocalDirectory(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := snap.Lookup(id)
	if !ok {
		return nil, notFound("document not found: " + id)
	}
	return s.renderer.Page(entry.Name, markdown)
}

// MigrateLegacyRecord replaces a legacy identifier with a freshly minted one
// and persists the mapping so old references keep resolving.
func (s *Service) MigrateLegacyRecord(ctx context.Context, legacyID string, kind identity.Kind) (string, error) {
	if !identity.IsLegacy(legacyID) {
		return "", fmt.Errorf("not a legacy identifier: %s", legacyID)
	}
	newID := identity.Migrate(legacyID, kind)
	if err := s.store.Put(ctx, localstore.TableWorkspaceIDMap, legacyID, newID); err != nil {
		return "", fmt.Errorf("persist legacy mapping: %w", err)
	}
	s.log.Info().Str("legacy", legacyID).Str("replacement", newID).Msg("migrated legacy identifier")
	return newID, nil
}

// ResolveLegacy returns the migrated replacement for a legacy identifier, or
// the input unchanged when no mapping exists.
func (s *Service) ResolveLegacy(ctx context.Context, id string) (string, error) {
	if !identity.IsLegacy(id) {
		return id, nil
	}
	var mapped string
	err := s.store.Get(ctx, localstore.TableWorkspaceIDMap, id, &mapped)
	if errors.Is(err, localstore.ErrNotFound) {
		return id, nil
	}
	if err != nil {
		return "", err
	}
	return mapped, nil
}

func (s *Service) persistView(ctx context.Context, table string, view reconcile.View) error {
	for _, record := range view.Records() {
		if err := s.store.Put(ctx, table, record.CanonicalKey(), record); err != nil {
			return fmt.Errorf("persist %s record: %w", table, err)
		}
	}
	return nil
}
