// Package msteams implements bulk provisioning for Microsoft Teams
// telephony: emergency (civic) addresses and the network elements that
// hang off them.
package msteams

import (
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const Platform = "msteams"

func AddressesSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform: Platform,
		DataType: "emergency_addresses",
		Title:    "Emergency Addresses",
		Description: "Civic addresses used for emergency calling. Deleting an " +
			"address also removes its subnets, switches, ports, access points " +
			"and locations.",
		Supports: []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk,
			rowmodel.SupportsExport, rowmodel.SupportsBrowse},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete},
		TargetField: "description",
		Fields: []rowmodel.Field{
			{Name: "description", WBKey: "Description", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate,
					rowmodel.ActionDelete},
				Doc: rowmodel.FieldDoc{Notes: "Unique address description."}},
			{Name: "companyName", WBKey: "Company Name",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "houseNumber", WBKey: "House Number"},
			{Name: "streetName", WBKey: "Street Name",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "city", WBKey: "City",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "stateOrProvince", WBKey: "State or Province"},
			{Name: "postalCode", WBKey: "Postal Code"},
			{Name: "countryOrRegion", WBKey: "Country",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate},
				Doc:         rowmodel.FieldDoc{Value: "ISO country code, e.g. GB"}},
			{Name: "latitude", WBKey: "Latitude"},
			{Name: "longitude", WBKey: "Longitude"},
			{Name: "id", Required: true},
		},
	}
}

// elementSchema builds the shared shape of a LIS network element data
// type: identifying columns first, then description and the owning
// civic address.
func elementSchema(dataType, title, targetField string, keys ...rowmodel.Field) *rowmodel.Schema {
	fields := append([]rowmodel.Field{}, keys...)
	fields = append(fields,
		rowmodel.Field{Name: "description", WBKey: "Description"},
		rowmodel.Field{Name: "address", WBKey: "Emergency Address",
			RequiredFor: []rowmodel.Action{rowmodel.ActionCreate},
			Doc: rowmodel.FieldDoc{
				Notes: "Description of the civic address the element reports."}},
	)
	return &rowmodel.Schema{
		Platform:    Platform,
		DataType:    dataType,
		Title:       title,
		Description: "Location Information Service network elements used to place callers at a civic address.",
		Supports:    []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete},
		TargetField: targetField,
		Fields:      fields,
	}
}

func SubnetsSchema() *rowmodel.Schema {
	return elementSchema("lis_subnets", "LIS Subnets", "subnet",
		rowmodel.Field{Name: "subnet", WBKey: "Subnet", Required: true,
			RequiredFor: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete},
			Doc:         rowmodel.FieldDoc{Value: "Subnet address, e.g. 10.10.1.0"}})
}

func SwitchesSchema() *rowmodel.Schema {
	return elementSchema("lis_switches", "LIS Switches", "chassisId",
		rowmodel.Field{Name: "chassisId", WBKey: "Chassis ID", Required: true,
			RequiredFor: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete}})
}

func PortsSchema() *rowmodel.Schema {
	return elementSchema("lis_ports", "LIS Ports", "portId",
		rowmodel.Field{Name: "chassisId", WBKey: "Chassis ID", Required: true,
			RequiredFor: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete}},
		rowmodel.Field{Name: "portId", WBKey: "Port ID", Required: true,
			RequiredFor: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete}})
}

func AccessPointsSchema() *rowmodel.Schema {
	return elementSchema("lis_wireless_access_points", "LIS Wireless Access Points", "bssid",
		rowmodel.Field{Name: "bssid", WBKey: "BSSID", Required: true,
			RequiredFor: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionDelete},
			Doc:         rowmodel.FieldDoc{Value: "Access point BSSID, e.g. 00-1A-2B-3C-4D-5E"}})
}

// Register wires every Teams data type into the registry.
func Register(reg *registry.Registry) error {
	addresses, err := reg.Register(AddressesSchema())
	if err != nil {
		return err
	}
	if _, err := addresses.Handle(rowmodel.ActionCreate, &createAddress{}); err != nil {
		return err
	}
	if _, err := addresses.Handle(rowmodel.ActionDelete, &deleteAddress{}); err != nil {
		return err
	}
	if _, err := addresses.ExportWith(exportAddresses); err != nil {
		return err
	}

	elements := []struct {
		schema *rowmodel.Schema
		api    elementAPI
	}{
		{SubnetsSchema(), subnetsAPI},
		{SwitchesSchema(), switchesAPI},
		{PortsSchema(), portsAPI},
		{AccessPointsSchema(), accessPointsAPI},
	}
	for _, element := range elements {
		entry, err := reg.Register(element.schema)
		if err != nil {
			return err
		}
		if _, err := entry.Handle(rowmodel.ActionCreate, &createElement{api: element.api}); err != nil {
			return err
		}
		if _, err := entry.Handle(rowmodel.ActionDelete, &deleteElement{api: element.api}); err != nil {
			return err
		}
	}
	return nil
}
