package wbxc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rpattn/ucprov/internal/faults"
	"github.com/rpattn/ucprov/internal/ops"
	"github.com/rpattn/ucprov/internal/platforms/api"
	"github.com/rpattn/ucprov/internal/rowmodel"
)

const (
	locationsPath = "telephony/config/locations"
	numbersPath   = "telephony/config/numbers"
)

// expandRange expands an inclusive Start/End number pair. Start and end
// must be the same length and share every digit except a numeric
// suffix; an empty end means a single number.
func expandRange(start, end string) ([]string, error) {
	if end == "" || end == start {
		return []string{start}, nil
	}
	if len(start) != len(end) {
		return nil, faults.NewBulkOpFailed(
			"Start and End Number must be the same length.")
	}

	// The shared prefix ends where the numbers diverge.
	split := 0
	for i := 0; i < len(start); i++ {
		if start[i] != end[i] {
			split = i
			break
		}
	}
	prefix := start[:split]

	startSuffix, err := strconv.Atoi(start[split:])
	if err != nil {
		return nil, faults.NewBulkOpFailed(
			"Start and End Number must only differ in their trailing digits.")
	}
	endSuffix, err := strconv.Atoi(end[split:])
	if err != nil {
		return nil, faults.NewBulkOpFailed(
			"Start and End Number must only differ in their trailing digits.")
	}
	if endSuffix < startSuffix {
		return nil, faults.NewBulkOpFailed(
			"End Number must not be lower than Start Number.")
	}

	count := endSuffix - startSuffix + 1
	if count > MaxNumbersPerRequest {
		return nil, faults.NewBulkOpFailed(
			"A maximum of %d numbers can be processed per row.", MaxNumbersPerRequest)
	}

	width := len(start) - split
	numbers := make([]string, 0, count)
	for suffix := startSuffix; suffix <= endSuffix; suffix++ {
		numbers = append(numbers, fmt.Sprintf("%s%0*d", prefix, width, suffix))
	}
	return numbers, nil
}

// lookupLocation resolves a location name to its vendor object.
func lookupLocation(ctx context.Context, client api.Client, name string) (map[string]any, error) {
	query := url.Values{}
	query.Set("name", name)
	entries, err := client.List(ctx, locationsPath, query)
	if err != nil {
		return nil, err
	}
	return ops.NewLookup("location", name, entries, func(entry map[string]any) bool {
		entryName, _ := entry["name"].(string)
		return strings.EqualFold(entryName, name)
	}).One()
}

func locationNumbersPath(locationID string) string {
	return fmt.Sprintf("%s/%s/numbers", locationsPath, locationID)
}

func rowNumbers(record *rowmodel.Record) ([]string, error) {
	return expandRange(record.Get("start"), record.Get("end"))
}

// createNumbers adds a number range to a location with one vendor call.
// The State column rides along in that call unchanged; the vendor picks
// its default when the column is blank.
type createNumbers struct{}

func (o *createNumbers) Run(ctx context.Context, oc *ops.Context) error {
	numbers, err := rowNumbers(oc.Record)
	if err != nil {
		return err
	}

	location, err := lookupLocation(ctx, oc.Client, oc.Record.Get("location"))
	if err != nil {
		return err
	}
	locationID, _ := location["id"].(string)

	payload := map[string]any{"phoneNumbers": toAny(numbers)}
	if state := oc.Record.Get("state"); state != "" {
		payload["state"] = state
	}
	_, err = oc.Client.Create(ctx, locationNumbersPath(locationID), payload)
	if err != nil {
		if api.IsStatus(err, 400) {
			return faults.NewBulkOpFailed(
				"Failed to create numbers. One or more numbers may already exist.")
		}
		return err
	}
	oc.Completed(ops.Task{
		Name: "create numbers",
		Rollback: func(ctx context.Context) error {
			return deleteNumberBatch(ctx, oc.Client, locationID, numbers)
		},
	})
	return nil
}

// updateNumbers is the UPDATE action: it moves existing numbers to the
// state requested in the row.
type updateNumbers struct{}

func (o *updateNumbers) Run(ctx context.Context, oc *ops.Context) error {
	numbers, err := rowNumbers(oc.Record)
	if err != nil {
		return err
	}
	location, err := lookupLocation(ctx, oc.Client, oc.Record.Get("location"))
	if err != nil {
		return err
	}
	locationID, _ := location["id"].(string)

	_, err = oc.Client.Update(ctx, locationNumbersPath(locationID), map[string]any{
		"phoneNumbers": toAny(numbers),
		"state":        oc.Record.Get("state"),
	})
	return err
}

type deleteNumbers struct{}

func (o *deleteNumbers) Run(ctx context.Context, oc *ops.Context) error {
	numbers, err := rowNumbers(oc.Record)
	if err != nil {
		return err
	}
	location, err := lookupLocation(ctx, oc.Client, oc.Record.Get("location"))
	if err != nil {
		return err
	}
	locationID, _ := location["id"].(string)
	return deleteNumberBatch(ctx, oc.Client, locationID, numbers)
}

func deleteNumberBatch(ctx context.Context, client api.Client, locationID string, numbers []string) error {
	query := url.Values{}
	query.Set("phoneNumbers", strings.Join(numbers, ","))
	return client.Delete(ctx, locationNumbersPath(locationID)+"?"+query.Encode())
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}

// exportNumbers lists every number in the org. Numbers the listing
// returns without their location are reported on the error sheet.
func exportNumbers(ctx context.Context, client api.Client) ([]*rowmodel.Record, []string, error) {
	entries, err := client.List(ctx, numbersPath, nil)
	if err != nil {
		return nil, nil, err
	}

	schema := NumbersSchema()
	records := make([]*rowmodel.Record, 0, len(entries))
	var buildErrors []string
	for _, entry := range entries {
		overrides := map[string]any{
			"start": entry["phoneNumber"],
		}
		if location, ok := entry["location"].(map[string]any); ok {
			overrides["location"] = location["name"]
		} else {
			number, _ := entry["phoneNumber"].(string)
			buildErrors = append(buildErrors,
				fmt.Sprintf("number %s: no location returned by the vendor", number))
		}
		records = append(records, rowmodel.SafeBuild(schema, entry, overrides))
	}
	return records, buildErrors, nil
}
