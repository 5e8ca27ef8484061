package fleetapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PermAdminWildcard is the account-admin grant the core API returns
// for users who may do anything on the account.
const PermAdminWildcard = "all.all.all"

// Client calls the fleet-management core API. All calls forward the
// caller's session cookie so the upstream resolves the same user.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建 fleet core API 客户端
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// ModulePerm is a single permission grant inside a module.
type ModulePerm struct {
	PermID string `json:"permid"`
}

// ModulePermissions groups the grants of one upstream module.
type ModulePermissions struct {
	ModuleName string       `json:"modulename"`
	Perms      []ModulePerm `json:"perms"`
}

// MyPermissions is the payload of the getmyperms endpoint.
type MyPermissions struct {
	Permissions         []string            `json:"permissions"`
	PermissionsByModule []ModulePermissions `json:"permissionsbymodule"`
}

type fleetRef struct {
	FleetID string `json:"fleetid"`
}

func (c *Client) get(ctx context.Context, path, cookie string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fleet api call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fleet api returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode fleet api response failed: %w", err)
	}
	return nil
}

// GetMyPermissions resolves the calling user's permissions for a fleet.
func (c *Client) GetMyPermissions(ctx context.Context, fleetID, cookie string) (*MyPermissions, error) {
	var envelope struct {
		Data MyPermissions `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/fms/account/fleet/%s/getmyperms", fleetID)
	if err := c.get(ctx, path, cookie, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Data, nil
}

// GetSubFleets returns the fleet itself followed by its sub-fleets.
func (c *Client) GetSubFleets(ctx context.Context, fleetID, cookie string, recursive bool) ([]string, error) {
	var envelope struct {
		Data []fleetRef `json:"data"`
	}
	path := fmt.Sprintf("/api/v1/fms/account/fleet/%s/subfleets?recursive=%t", fleetID, recursive)
	if err := c.get(ctx, path, cookie, &envelope); err != nil {
		return nil, err
	}
	fleetIDs := make([]string, 0, len(envelope.Data)+1)
	fleetIDs = append(fleetIDs, fleetID)
	for _, fleet := range envelope.Data {
		fleetIDs = append(fleetIDs, fleet.FleetID)
	}
	return fleetIDs, nil
}

// GetAccountFleets returns every fleet id visible to the caller's account.
func (c *Client) GetAccountFleets(ctx context.Context, cookie string) ([]string, error) {
	var envelope struct {
		Data []fleetRef `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/fms/account/fleets", cookie, &envelope); err != nil {
		return nil, err
	}
	fleetIDs := make([]string, 0, len(envelope.Data))
	for _, fleet := range envelope.Data {
		fleetIDs = append(fleetIDs, fleet.FleetID)
	}
	return fleetIDs, nil
}
