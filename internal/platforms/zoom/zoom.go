// Package zoom implements bulk provisioning for Zoom Phone users.
package zoom

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/registry"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const Platform = "zoom"

const (
	usersPath = "phone/users"
	sitesPath = "phone/sites"
)

func PhoneUsersSchema() *rowmodel.Schema {
	return &rowmodel.Schema{
		Platform: Platform,
		DataType: "phone_users",
		Title:    "Phone Users",
		Description: "Zoom Phone users with their extensions and calling " +
			"policy. Policy settings use dotted columns, e.g. " +
			"Policy.voicemail.enable.",
		Supports: []string{rowmodel.SupportsUpload, rowmodel.SupportsBulk,
			rowmodel.SupportsExport, rowmodel.SupportsBrowse},
		BulkActions: []rowmodel.Action{rowmodel.ActionCreate, rowmodel.ActionUpdate,
			rowmodel.ActionDelete},
		TargetField: "email",
		Fields: []rowmodel.Field{
			{Name: "email", WBKey: "Email", Required: true,
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate,
					rowmodel.ActionUpdate, rowmodel.ActionDelete}},
			{Name: "first_name", WBKey: "First Name"},
			{Name: "last_name", WBKey: "Last Name"},
			{Name: "extension_number", WBKey: "Extension",
				RequiredFor: []rowmodel.Action{rowmodel.ActionCreate}},
			{Name: "site", WBKey: "Site",
				Doc: rowmodel.FieldDoc{Notes: "Site name exactly as configured."}},
			{Name: "policy", WBKey: "Policy", Kind: rowmodel.KindNested},
			{Name: "id", Required: true},
		},
	}
}

// Register wires every Zoom data type into the registry.
func Register(reg *registry.Registry) error {
	users, err := reg.Register(PhoneUsersSchema())
	if err != nil {
		return err
	}
	if _, err := users.Handle(rowmodel.ActionCreate, &createPhoneUser{}); err != nil {
		return err
	}
	if _, err := users.Handle(rowmodel.ActionUpdate, &updatePhoneUser{}); err != nil {
		return err
	}
	if _, err := users.Handle(rowmodel.ActionDelete, &deletePhoneUser{}); err != nil {
		return err
	}
	if _, err := users.ExportWith(exportPhoneUsers); err != nil {
		return err
	}
	return nil
}

func lookupSite(ctx context.Context, client api.Client, name string) (map[string]any, error) {
	entries, err := client.List(ctx, sitesPath, nil)
	if err != nil {
		return nil, err
	}
	return ops.NewLookup("site", name, entries, func(entry map[string]any) bool {
		entryName, _ := entry["name"].(string)
		return strings.EqualFold(entryName, name)
	}).One()
}

func lookupPhoneUser(ctx context.Context, client api.Client, email string) (map[string]any, error) {
	query := url.Values{}
	query.Set("email", email)
	entries, err := client.List(ctx, usersPath, query)
	if err != nil {
		return nil, err
	}
	return ops.NewLookup("phone user", email, entries, func(entry map[string]any) bool {
		entryEmail, _ := entry["email"].(string)
		return strings.EqualFold(entryEmail, email)
	}).One()
}

func policyPayload(record *rowmodel.Record) (map[string]any, error) {
	payload, err := record.Payload(rowmodel.PayloadOptions{
		DropUnset: true,
		Include:   []string{"policy"},
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// createPhoneUser provisions the user and then applies the calling
// policy as a separate step; a failed policy write removes the user
// again so no half-configured account survives.
type createPhoneUser struct{}

func (o *createPhoneUser) Run(ctx context.Context, oc *ops.Context) error {
	payload, err := oc.Record.Payload(rowmodel.PayloadOptions{
		DropUnset: true,
		Exclude:   []string{"id", "site", "policy"},
	})
	if err != nil {
		return err
	}

	if site := oc.Record.Get("site"); site != "" {
		found, err := lookupSite(ctx, oc.Client, site)
		if err != nil {
			return err
		}
		payload["site_id"] = found["id"]
	}

	created, err := oc.Client.Create(ctx, usersPath, payload)
	if err != nil {
		return err
	}
	userID, _ := created["id"].(string)
	oc.Completed(ops.Task{
		Name: "create phone user",
		Rollback: func(ctx context.Context) error {
			return oc.Client.Delete(ctx, usersPath+"/"+userID)
		},
	})

	policy, err := policyPayload(oc.Record)
	if err != nil {
		return err
	}
	if len(policy) > 0 {
		if _, err := oc.Client.Update(ctx, usersPath+"/"+userID, policy); err != nil {
			return err
		}
		oc.Completed(ops.Task{
			Name:     "apply calling policy",
			Rollback: func(context.Context) error { return nil },
		})
	}
	return nil
}

type updatePhoneUser struct{}

func (o *updatePhoneUser) Run(ctx context.Context, oc *ops.Context) error {
	user, err := lookupPhoneUser(ctx, oc.Client, oc.Record.Get("email"))
	if err != nil {
		return err
	}
	userID, _ := user["id"].(string)

	payload, err := oc.Record.Payload(rowmodel.PayloadOptions{
		DropUnset: true,
		Exclude:   []string{"id", "email", "site"},
	})
	if err != nil {
		return err
	}
	if site := oc.Record.Get("site"); site != "" {
		found, err := lookupSite(ctx, oc.Client, site)
		if err != nil {
			return err
		}
		payload["site_id"] = found["id"]
	}
	if len(payload) == 0 {
		return nil
	}

	_, err = oc.Client.Update(ctx, usersPath+"/"+userID, payload)
	return err
}

type deletePhoneUser struct{}

func (o *deletePhoneUser) Run(ctx context.Context, oc *ops.Context) error {
	user, err := lookupPhoneUser(ctx, oc.Client, oc.Record.Get("email"))
	if err != nil {
		return err
	}
	userID, _ := user["id"].(string)
	return oc.Client.Delete(ctx, usersPath+"/"+userID)
}

// exportPhoneUsers lists every phone user, fetching each user's detail
// for the policy columns. A failed detail fetch degrades that row to
// the listing fields and lands on the error sheet.
func exportPhoneUsers(ctx context.Context, client api.Client) ([]*rowmodel.Record, []string, error) {
	entries, err := client.List(ctx, usersPath, nil)
	if err != nil {
		return nil, nil, err
	}

	schema := PhoneUsersSchema()
	records := make([]*rowmodel.Record, 0, len(entries))
	var buildErrors []string
	for _, entry := range entries {
		userID, _ := entry["id"].(string)
		overrides := map[string]any{}
		if site, ok := entry["site"].(map[string]any); ok {
			overrides["site"] = site["name"]
		}

		detail, err := client.Get(ctx, usersPath+"/"+userID, nil)
		if err != nil {
			email, _ := entry["email"].(string)
			buildErrors = append(buildErrors,
				fmt.Sprintf("phone user %s: detail fetch failed", email))
			records = append(records, rowmodel.SafeBuild(schema, entry, overrides))
			continue
		}
		records = append(records, rowmodel.SafeBuild(schema, entry, detail, overrides))
	}
	return records, buildErrors, nil
}
