// Package wbxc implements bulk provisioning for Webex Calling: phone
// number ranges and locations.
package wbxc

import (
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const Platform = "wbxc"

// MaxNumbersPerRequest bounds one row's inclusive number range; the
// vendor API rejects larger batches.
const MaxNumbersPerRequest = 500

func NumbersSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform: Platform,
		DataType: "numbers",
		Title:    "Numbers",
		Description: "Phone numbers assigned to locations. A row may carry a " +
			"single number or an inclusive range.",
		Supports: []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk,
			rowmodel.SupportsExport, rowmodel.SupportsBrowse},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionUpdate,
			rowmodel.ActionDelete},
		TargetField: "start",
		Fields: []rowmodel.Field{
			{Name: "location", WBKey: "Location", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate,
					rowmodel.ActionUpdate, rowmodel.ActionDelete},
				Doc: rowmodel.FieldDoc{Notes: "Location name exactly as configured."}},
			{Name: "start", WBKey: "Start Number", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate,
					rowmodel.ActionUpdate, rowmodel.ActionDelete},
				Doc: rowmodel.FieldDoc{Value: "E.164 number, e.g. +15556660100"}},
			{Name: "end", WBKey: "End Number",
				Doc: rowmodel.FieldDoc{Notes: "Optional inclusive range end. " +
					"Must share the Start Number's prefix."}},
			{Name: "state", WBKey: "State", OneOf: []string{"ACTIVE", "INACTIVE"},
				RequiredFor: []rowmodel.Action{rowmodel.ActionUpdate},
				Doc: rowmodel.FieldDoc{Value: "'ACTIVE' or 'INACTIVE'",
					Notes: "Sent to the vendor as given. The vendor picks the " +
						"default when the column is blank on CREATE."}},
		},
	}
}

func LocationsSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform:    Platform,
		DataType:    "locations",
		Title:       "Locations",
		Description: "Calling locations and their street addresses.",
		Supports: []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk,
			rowmodel.SupportsExport, rowmodel.SupportsBrowse},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionUpdate,
			rowmodel.ActionDelete},
		TargetField: "name",
		Fields: []rowmodel.Field{
			{Name: "name", WBKey: "Name", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate,
					rowmodel.ActionUpdate, rowmodel.ActionDelete}},
			{Name: "timeZone", WBKey: "Time Zone",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate},
				Doc:         rowmodel.FieldDoc{Value: "IANA zone, e.g. Europe/London"}},
			{Name: "announcementLanguage", WBKey: "Announcement Language",
				Doc: rowmodel.FieldDoc{Value: "e.g. en_GB"}},
			{Name: "address1", WBKey: "Address 1",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "address2", WBKey: "Address 2"},
			{Name: "city", WBKey: "City",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "state", WBKey: "State"},
			{Name: "postalCode", WBKey: "Postal Code"},
			{Name: "country", WBKey: "Country",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate},
				Doc:         rowmodel.FieldDoc{Value: "ISO country code, e.g. GB"}},
			{Name: "id", Required: true},
		},
	}
}

// Register wires every Webex Calling data type into the registry.
func Register(reg *registry.Registry) error {
	numbers, err := reg.Register(NumbersSchema())
	if err != nil {
		return err
	}
	if _, err := numbers.Handle(rowmodel.ActionCreate, &createNumbers{}); err != nil {
		return err
	}
	if _, err := numbers.Handle(rowmodel.ActionUpdate, &updateNumbers{}); err != nil {
		return err
	}
	if _, err := numbers.Handle(rowmodel.ActionDelete, &deleteNumbers{}); err != nil {
		return err
	}
	if _, err := numbers.ExportWith(exportNumbers); err != nil {
		return err
	}

	locations, err := reg.Register(LocationsSchema())
	if err != nil {
		return err
	}
	if _, err := locations.Handle(rowmodel.ActionCreate, &createLocation{}); err != nil {
		return err
	}
	if _, err := locations.Handle(rowmodel.ActionUpdate, &updateLocation{}); err != nil {
		return err
	}
	if _, err := locations.Handle(rowmodel.ActionDelete, &deleteLocation{}); err != nil {
		return err
	}
	if _, err := locations.ExportWith(exportLocations); err != nil {
		return err
	}
	return nil
}
