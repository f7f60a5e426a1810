package wbxc

import (
	"context"
	"fmt"

	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

func locationPayload(record *rowmodel.Record, dropUnset bool) (map[string]any, error) {
	payload, err := record.Payload(rowmodel.PayloadOptions{
		DropUnset: dropUnset,
		Exclude:   []string{"id", "address1", "address2", "city", "state", "postalCode", "country"},
	})
	if err != nil {
		return nil, err
	}

	address, err := record.Payload(rowmodel.PayloadOptions{
		DropUnset: dropUnset,
		Include:   []string{"address1", "address2", "city", "state", "postalCode", "country"},
	})
	if err != nil {
		return nil, err
	}
	if len(address) > 0 {
		payload["address"] = address
	}
	return payload, nil
}

type createLocation struct{}

func (o *createLocation) Run(ctx context.Context, oc *ops.Context) error {
	payload, err := locationPayload(oc.Record, false)
	if err != nil {
		return err
	}

	created, err := oc.Client.Create(ctx, locationsPath, payload)
	if err != nil {
		return err
	}
	locationID, _ := created["id"].(string)
	oc.Completed(ops.Task{
		Name: "create location",
		Rollback: func(ctx context.Context) error {
			return oc.Client.Delete(ctx, locationsPath+"/"+locationID)
		},
	})
	return nil
}

type updateLocation struct{}

func (o *updateLocation) Run(ctx context.Context, oc *ops.Context) error {
	location, err := lookupLocation(ctx, oc.Client, oc.Record.Get("name"))
	if err != nil {
		return err
	}
	locationID, _ := location["id"].(string)

	// Partial update: only populated columns are sent.
	payload, err := locationPayload(oc.Record, true)
	if err != nil {
		return err
	}
	delete(payload, "name")

	_, err = oc.Client.Update(ctx, locationsPath+"/"+locationID, payload)
	return err
}

type deleteLocation struct{}

func (o *deleteLocation) Run(ctx context.Context, oc *ops.Context) error {
	location, err := lookupLocation(ctx, oc.Client, oc.Record.Get("name"))
	if err != nil {
		return err
	}
	locationID, _ := location["id"].(string)
	return oc.Client.Delete(ctx, locationsPath+"/"+locationID)
}

// exportLocations lists every calling location with its address
// flattened back into worksheet columns.
func exportLocations(ctx context.Context, client api.Client) ([]*rowmodel.Record, []string, error) {
	entries, err := client.List(ctx, locationsPath, nil)
	if err != nil {
		return nil, nil, err
	}

	schema := LocationsSchema()
	records := make([]*rowmodel.Record, 0, len(entries))
	var buildErrors []string
	for _, entry := range entries {
		overrides := map[string]any{}
		if address, ok := entry["address"].(map[string]any); ok {
			for key, value := range address {
				overrides[key] = value
			}
		} else {
			name, _ := entry["name"].(string)
			buildErrors = append(buildErrors,
				fmt.Sprintf("location %s: no address returned by the vendor", name))
		}
		records = append(records, rowmodel.SafeBuild(schema, entry, overrides))
	}
	return records, buildErrors, nil
}
