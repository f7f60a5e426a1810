// Package five9 implements bulk provisioning for Five9 contact-centre
// users.
package five9

import (
	"context"
	"net/url"
	"strings"

	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const Platform = "five9"

const usersPath = "users"

func UsersSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform: Platform,
		DataType: "users",
		Title:    "Users",
		Description: "Five9 agents and supervisors. Outbound dial strings use " +
			"numbered columns: Dial String 1, Dial String 2 and so on.",
		Supports: []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk,
			rowmodel.SupportsExport, rowmodel.SupportsBrowse},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionUpdate,
			rowmodel.ActionDelete},
		TargetField: "userName",
		Fields: []rowmodel.Field{
			{Name: "userName", WBKey: "Username", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate,
					rowmodel.ActionUpdate, rowmodel.ActionDelete},
				Doc: rowmodel.FieldDoc{Notes: "Login name, usually the email address."}},
			{Name: "firstName", WBKey: "First Name",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "lastName", WBKey: "Last Name",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "email", WBKey: "Email",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "role", WBKey: "Role",
				OneOf: []string{"Agent", "Supervisor", "Admin", "Reporting"},
				Doc:   rowmodel.FieldDoc{Notes: "Defaults to Agent when left empty."}},
			{Name: "extension", WBKey: "Extension"},
			{Name: "active", WBKey: "Active", Kind: rowmodel.KindBool},
			{Name: "dialStrings", WBKey: "Dial String", Kind: rowmodel.KindGroup,
				Doc: rowmodel.FieldDoc{Notes: "Numbered columns, ordered."}},
			{Name: "id", Required: true},
		},
	}
}

// Register wires every Five9 data type into the registry.
func Register(reg *registry.Registry) error {
	users, err := reg.Register(UsersSchema())
	if err != nil {
		return err
	}
	if _, err := users.Handle(rowmodel.ActionCreate, &createUser{}); err != nil {
		return err
	}
	if _, err := users.Handle(rowmodel.ActionUpdate, &updateUser{}); err != nil {
		return err
	}
	if _, err := users.Handle(rowmodel.ActionDelete, &deleteUser{}); err != nil {
		return err
	}
	if _, err := users.ExportWith(exportUsers); err != nil {
		return err
	}
	return nil
}

func lookupUser(ctx context.Context, client api.Client, userName string) (map[string]any, error) {
	query := url.Values{}
	query.Set("userName", userName)
	entries, err := client.List(ctx, usersPath, query)
	if err != nil {
		return nil, err
	}
	return ops.NewLookup("user", userName, entries, func(entry map[string]any) bool {
		entryName, _ := entry["userName"].(string)
		return strings.EqualFold(entryName, userName)
	}).One()
}

type createUser struct{}

func (o *createUser) Run(ctx context.Context, oc *ops.Context) error {
	payload, err := oc.Record.Payload(rowmodel.PayloadOptions{
		DropUnset: true,
		Exclude:   []string{"id"},
	})
	if err != nil {
		return err
	}
	if _, ok := payload["role"]; !ok {
		payload["role"] = "Agent"
	}

	created, err := oc.Client.Create(ctx, usersPath, payload)
	if err != nil {
		return err
	}
	userID, _ := created["id"].(string)
	oc.Completed(ops.Task{
		Name: "create user",
		Rollback: func(ctx context.Context) error {
			return oc.Client.Delete(ctx, usersPath+"/"+userID)
		},
	})
	return nil
}

type updateUser struct{}

func (o *updateUser) Run(ctx context.Context, oc *ops.Context) error {
	user, err := lookupUser(ctx, oc.Client, oc.Record.Get("userName"))
	if err != nil {
		return err
	}
	userID, _ := user["id"].(string)

	// Partial update: only populated columns are sent. A row with dial
	// string columns replaces the whole list.
	payload, err := oc.Record.Payload(rowmodel.PayloadOptions{
		DropUnset: true,
		Exclude:   []string{"id", "userName"},
	})
	if err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}

	_, err = oc.Client.Update(ctx, usersPath+"/"+userID, payload)
	return err
}

type deleteUser struct{}

func (o *deleteUser) Run(ctx context.Context, oc *ops.Context) error {
	user, err := lookupUser(ctx, oc.Client, oc.Record.Get("userName"))
	if err != nil {
		return err
	}
	userID, _ := user["id"].(string)
	return oc.Client.Delete(ctx, usersPath+"/"+userID)
}

// exportUsers lists every user in the domain.
func exportUsers(ctx context.Context, client api.Client) ([]*rowmodel.Record, []string, error) {
	entries, err := client.List(ctx, usersPath, nil)
	if err != nil {
		return nil, nil, err
	}

	schema := UsersSchema()
	records := make([]*rowmodel.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, rowmodel.SafeBuild(schema, entry))
	}
	return records, nil, nil
}
