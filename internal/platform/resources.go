package platform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rflorenc/sisense-workbench/internal/models"
)

// ReservedGroups are system groups that exist on every tenant and are never
// migrated or listed for ownership grouping.
var ReservedGroups = []string{"Everyone", "All users in system"}

// resourceRegistry lists the browsable entity kinds, in migration order.
var resourceRegistry = []models.ResourceType{
	{Name: "groups", Label: "Groups", APIPath: "/api/v1/groups", Paged: true,
		Skip: map[string]bool{"Everyone": true, "All users in system": true, "Admins": true}},
	{Name: "users", Label: "Users", APIPath: "/api/v1/users", Paged: true},
	{Name: "roles", Label: "Roles", APIPath: "/api/roles"},
	{Name: "folders", Label: "Folders", APIPath: "/api/v1/folders", Paged: true},
	{Name: "dashboards", Label: "Dashboards", APIPath: "/api/v1/dashboards/searches"},
	{Name: "datamodels", Label: "Data Models", APIPath: "/api/v2/datamodels/schema", Paged: true},
}

// ResourceTypes returns the browsable resource kinds.
func (t *Tenant) ResourceTypes() []models.ResourceType {
	return resourceRegistry
}

// ResourceType returns the registry entry for name.
func ResourceType(name string) (models.ResourceType, bool) {
	for _, rt := range resourceRegistry {
		if rt.Name == name {
			return rt, true
		}
	}
	return models.ResourceType{}, false
}

// ListResources returns all objects of a resource kind as loose records.
func (t *Tenant) ListResources(ctx context.Context, resourceType string) ([]models.Resource, error) {
	rt, ok := ResourceType(resourceType)
	if !ok {
		return nil, fmt.Errorf("unknown resource type: %s", resourceType)
	}
	if rt.Name == "dashboards" {
		list, err := t.SearchDashboards(ctx, "")
		if err != nil {
			return nil, err
		}
		return toResources(list)
	}
	if rt.Paged {
		return Paginate(ctx, t.pageSize, func(ctx context.Context, limit, skip int) ([]models.Resource, error) {
			var page []models.Resource
			if err := t.client.GetJSON(ctx, rt.APIPath, pageParams(nil, limit, skip), &page); err != nil {
				return nil, fmt.Errorf("listing %s (skip=%d): %w", rt.Name, skip, err)
			}
			return page, nil
		})
	}
	var all []models.Resource
	if err := t.client.GetJSON(ctx, rt.APIPath, nil, &all); err != nil {
		return nil, fmt.Errorf("listing %s: %w", rt.Name, err)
	}
	return all, nil
}

func toResources[T any](items []T) ([]models.Resource, error) {
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	var out []models.Resource
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
