// Package directory talks to the cloud directory API. All records cross the
// wire keyed by bare UUID; the pagination envelope is flattened into plain
// record lists before anything else in the client sees it.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"inkwell/client/internal/access"
	"inkwell/client/internal/identity"
	"inkwell/client/internal/reconcile"
)

const pageSize = 100

// Client is a thin wrapper over the directory endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken swaps the bearer token, e.g. after a token refresh.
func (c *Client) SetToken(token string) {
	c.token = token
}

// remoteRecord is the wire shape of one directory row.
type remoteRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ParentID    string    `json:"parentId,omitempty"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	IsPublic    bool      `json:"isPublic,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`
}

type listEnvelope struct {
	Total int            `json:"total"`
	Items []remoteRecord `json:"items"`
}

// ListWorkspaces returns every workspace visible to the current user.
func (c *Client) ListWorkspaces(ctx context.Context) ([]reconcile.Record, error) {
	return c.listRecords(ctx, "/api/workspaces", identity.KindWorkspace)
}

// ListFolders returns the folders of one workspace.
func (c *Client) ListFolders(ctx context.Context, workspaceID string) ([]reconcile.Record, error) {
	path := "/api/workspaces/" + url.PathEscape(workspaceID) + "/folders"
	return c.listRecords(ctx, path, identity.KindFolder)
}

// ListDocuments returns the documents of one workspace.
func (c *Client) ListDocuments(ctx context.Context, workspaceID string) ([]reconcile.Record, error) {
	path := "/api/workspaces/" + url.PathEscape(workspaceID) + "/documents"
	return c.listRecords(ctx, path, identity.KindDocument)
}

func (c *Client) listRecords(ctx context.Context, path string, kind identity.Kind) ([]reconcile.Record, error) {
	var out []reconcile.Record
	offset := 0
	for {
		var env listEnvelope
		query := url.Values{
			"offset": {strconv.Itoa(offset)},
			"limit":  {strconv.Itoa(pageSize)},
		}
		if err := c.get(ctx, path+"?"+query.Encode(), &env); err != nil {
			return nil, err
		}
		for _, item := range env.Items {
			out = append(out, reconcile.Record{
				CloudID:     item.ID,
				Kind:        kind,
				Name:        item.Name,
				ParentID:    item.ParentID,
				WorkspaceID: item.WorkspaceID,
				CreatedBy:   item.CreatedBy,
				IsPublic:    item.IsPublic,
				UpdatedAt:   item.UpdatedAt,
			})
		}
		offset += len(env.Items)
		if len(env.Items) < pageSize || (env.Total > 0 && offset >= env.Total) {
			return out, nil
		}
	}
}

type shareRecord struct {
	PrincipalID string `json:"principalId"`
	Role        string `json:"role"`
}

// ListShares returns the explicit per-user grants on a document.
func (c *Client) ListShares(ctx context.Context, documentID string) ([]access.Share, error) {
	var env struct {
		Items []shareRecord `json:"items"`
	}
	path := "/api/documents/" + url.PathEscape(documentID) + "/shares"
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	shares := make([]access.Share, 0, len(env.Items))
	for _, s := range env.Items {
		shares = append(shares, access.Share{
			PrincipalID: s.PrincipalID,
			Role:        access.Normalize(s.Role),
		})
	}
	return shares, nil
}

type memberRecord struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// ListMembers returns the role-carrying memberships of a workspace.
func (c *Client) ListMembers(ctx context.Context, workspaceID string) ([]access.Member, error) {
	var env struct {
		Items []memberRecord `json:"items"`
	}
	path := "/api/workspaces/" + url.PathEscape(workspaceID) + "/members"
	if err := c.get(ctx, path, &env); err != nil {
		return nil, err
	}
	members := make([]access.Member, 0, len(env.Items))
	for _, m := range env.Items {
		members = append(members, access.Member{
			UserID: m.UserID,
			Role:   access.Normalize(m.Role),
		})
	}
	return members, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory request %s: status %d: %s", path, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
