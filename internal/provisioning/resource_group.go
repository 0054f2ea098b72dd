package provisioning

import (
	"context"
	"fmt"
)

// LookupResourceGroup resolves a pre-existing resource group by name.
func LookupResourceGroup(ctx context.Context, api ResourceGroupsAPI, name string) (ResourceGroupRef, error) {
	if name == "" {
		return ResourceGroupRef{}, fmt.Errorf("%w: empty resource group name", ErrInvalidInput)
	}
	rg, err := api.Get(ctx, name)
	if err != nil {
		return ResourceGroupRef{}, fmt.Errorf("failed to get resource group %s: %w", name, err)
	}
	ref := ResourceGroupRef{
		ID:       deref(rg.ID),
		Name:     deref(rg.Name),
		Location: deref(rg.Location),
	}
	if ref.Name == "" {
		ref.Name = name
	}
	if ref.Location == "" {
		return ResourceGroupRef{}, fmt.Errorf("%w: resource group %s has no location", ErrInvalidInput, name)
	}
	return ref, nil
}

func validateGroup(rg ResourceGroupRef) error {
	if rg.Name == "" || rg.Location == "" {
		return fmt.Errorf("%w: resource group must have a name and location", ErrInvalidInput)
	}
	return nil
}
