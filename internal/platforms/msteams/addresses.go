package msteams

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const addressesPath = "emergencyAddresses"

// networkElementKinds are the resources attached to a civic address, in
// the order they must be removed. Subnets reference switches and
// switches reference ports, so the dependency chain unwinds front to
// back.
var networkElementKinds = []struct {
	Kind string
	Path string
}{
	{Kind: "subnet", Path: "lis/subnets"},
	{Kind: "switch", Path: "lis/switches"},
	{Kind: "port", Path: "lis/ports"},
	{Kind: "wireless access point", Path: "lis/wirelessAccessPoints"},
	{Kind: "location", Path: "lis/locations"},
}

func lookupAddress(ctx context.Context, client api.Client, description string) (map[string]any, error) {
	query := url.Values{}
	query.Set("description", description)
	entries, err := client.List(ctx, addressesPath, query)
	if err != nil {
		return nil, err
	}
	return ops.NewLookup("emergency address", description, entries,
		func(entry map[string]any) bool {
			entryDescription, _ := entry["description"].(string)
			return strings.EqualFold(entryDescription, description)
		}).One()
}

// addressPayload renders the row for the vendor API. Teams rejects
// empty strings for optional address parts, so unset columns are sent
// as explicit nulls.
func addressPayload(record *rowmodel.Record) (map[string]any, error) {
	payload, err := record.Payload(rowmodel.PayloadOptions{Exclude: []string{"id"}})
	if err != nil {
		return nil, err
	}
	for key, value := range payload {
		if value == "" {
			payload[key] = nil
		}
	}
	return payload, nil
}

type createAddress struct{}

func (o *createAddress) Run(ctx context.Context, oc *ops.Context) error {
	payload, err := addressPayload(oc.Record)
	if err != nil {
		return err
	}

	created, err := oc.Client.Create(ctx, addressesPath, payload)
	if err != nil {
		if api.IsStatus(err, 409) {
			return faults.NewBulkOpFailed(
				"An emergency address with description '%s' already exists.",
				oc.Record.Get("description"))
		}
		return err
	}
	addressID, _ := created["id"].(string)
	oc.Completed(ops.Task{
		Name: "create emergency address",
		Rollback: func(ctx context.Context) error {
			return oc.Client.Delete(ctx, addressesPath+"/"+addressID)
		},
	})
	return nil
}

// deleteAddress removes a civic address and everything attached to it.
// Addresses with assigned users or numbers are refused outright; the
// cascade only covers network topology, never service assignments.
type deleteAddress struct{}

func (o *deleteAddress) Run(ctx context.Context, oc *ops.Context) error {
	description := oc.Record.Get("description")

	address, err := lookupAddress(ctx, oc.Client, description)
	if err != nil {
		return err
	}
	addressID, _ := address["id"].(string)

	detail, err := oc.Client.Get(ctx, addressesPath+"/"+addressID, nil)
	if err != nil {
		return err
	}
	if inUseCount(detail, "numberOfVoiceUsers") > 0 ||
		inUseCount(detail, "numberOfTelephoneNumbers") > 0 {
		return faults.NewBulkOpFailed(
			"Address '%s' has assigned users or numbers and cannot be deleted.",
			description)
	}

	for _, elementKind := range networkElementKinds {
		if err := o.deleteElements(ctx, oc, elementKind.Kind, elementKind.Path, addressID); err != nil {
			return err
		}
	}

	if err := oc.Client.Delete(ctx, addressesPath+"/"+addressID); err != nil {
		return err
	}
	oc.Completed(ops.Task{
		Name: "delete emergency address",
		Rollback: func(ctx context.Context) error {
			_, err := oc.Client.Create(ctx, addressesPath, detail)
			return err
		},
	})
	return nil
}

func (o *deleteAddress) deleteElements(ctx context.Context, oc *ops.Context, kind, path, addressID string) error {
	query := url.Values{}
	query.Set("civicAddressId", addressID)
	elements, err := oc.Client.List(ctx, path, query)
	if err != nil {
		return err
	}

	for _, element := range elements {
		element := element
		elementID, _ := element["id"].(string)
		if err := oc.Client.Delete(ctx, path+"/"+elementID); err != nil {
			return err
		}
		oc.Completed(ops.Task{
			Name: fmt.Sprintf("delete %s %s", kind, elementID),
			Rollback: func(ctx context.Context) error {
				_, err := oc.Client.Create(ctx, path, element)
				return err
			},
		})
	}
	return nil
}

func inUseCount(detail map[string]any, key string) int {
	if value, ok := detail[key].(float64); ok {
		return int(value)
	}
	return 0
}

// exportAddresses lists every civic address in the tenant.
func exportAddresses(ctx context.Context, client api.Client) ([]*rowmodel.Record, []string, error) {
	entries, err := client.List(ctx, addressesPath, nil)
	if err != nil {
		return nil, nil, err
	}

	schema := AddressesSchema()
	records := make([]*rowmodel.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, rowmodel.SafeBuild(schema, entry))
	}
	return records, nil, nil
}
