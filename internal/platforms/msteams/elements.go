package msteams

import (
	"context"
	"strings"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

// elementAPI describes one LIS network element collection. keys are the
// payload fields that identify a single element; ports need both the
// chassis and the port id.
type elementAPI struct {
	noun string
	path string
	keys []string
}

var (
	subnetsAPI      = elementAPI{noun: "subnet", path: "lis/subnets", keys: []string{"subnet"}}
	switchesAPI     = elementAPI{noun: "switch", path: "lis/switches", keys: []string{"chassisId"}}
	portsAPI        = elementAPI{noun: "port", path: "lis/ports", keys: []string{"chassisId", "portId"}}
	accessPointsAPI = elementAPI{noun: "wireless access point",
		path: "lis/wirelessAccessPoints", keys: []string{"bssid"}}
)

// createElement provisions one network element under the civic address
// named in the Emergency Address column.
type createElement struct {
	api elementAPI
}

func (o *createElement) Run(ctx context.Context, oc *ops.Context) error {
	address, err := lookupAddress(ctx, oc.Client, oc.Record.Get("address"))
	if err != nil {
		return err
	}

	payload, err := oc.Record.Payload(rowmodel.PayloadOptions{
		DropUnset: true,
		Exclude:   []string{"address"},
	})
	if err != nil {
		return err
	}
	payload["civicAddressId"] = address["id"]

	created, err := oc.Client.Create(ctx, o.api.path, payload)
	if err != nil {
		if api.IsStatus(err, 409) {
			return faults.NewBulkOpFailed(
				"A %s matching this row already exists.", o.api.noun)
		}
		return err
	}
	createdID, _ := created["id"].(string)
	oc.Completed(ops.Task{
		Name: "create " + o.api.noun,
		Rollback: func(ctx context.Context) error {
			return oc.Client.Delete(ctx, o.api.path+"/"+createdID)
		},
	})
	return nil
}

// deleteElement removes one network element, matched by its identifying
// fields. The rollback re-creates the element as the vendor returned it.
type deleteElement struct {
	api elementAPI
}

func (o *deleteElement) Run(ctx context.Context, oc *ops.Context) error {
	element, err := o.lookup(ctx, oc)
	if err != nil {
		return err
	}
	elementID, _ := element["id"].(string)

	if err := oc.Client.Delete(ctx, o.api.path+"/"+elementID); err != nil {
		return err
	}
	oc.Completed(ops.Task{
		Name: "delete " + o.api.noun,
		Rollback: func(ctx context.Context) error {
			_, err := oc.Client.Create(ctx, o.api.path, element)
			return err
		},
	})
	return nil
}

func (o *deleteElement) lookup(ctx context.Context, oc *ops.Context) (map[string]any, error) {
	entries, err := oc.Client.List(ctx, o.api.path, nil)
	if err != nil {
		return nil, err
	}
	target := oc.Record.Get(oc.Record.Schema().TargetField)
	return ops.NewLookup(o.api.noun, target, entries, func(entry map[string]any) bool {
		for _, key := range o.api.keys {
			value, _ := entry[key].(string)
			if !strings.EqualFold(value, oc.Record.Get(key)) {
				return false
			}
		}
		return true
	}).One()
}
