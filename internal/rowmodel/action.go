// Package rowmodel implements the typed row model for provisioning
// workbooks: declarative field schemas per (platform, data type) and
// lossless two-way conversion between worksheet rows, typed records and
// vendor API payloads.
package rowmodel

import (
	"strings"

	"github.com/rpattn/ucprov/internal/faults"
)

// Action is the bulk action requested for a workbook row.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionIgnore Action = "IGNORE"
)

// Actions lists every valid action in canonical order.
var Actions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionIgnore}

// ParseAction canonicalizes a workbook action value. Matching is
// case-insensitive; the canonical upper-case form is returned.
func ParseAction(value string) (Action, error) {
	needle := strings.ToUpper(strings.TrimSpace(value))
	for _, action := range Actions {
		if string(action) == needle {
			return action, nil
		}
	}
	return "", faults.NewConversionError(
		"Action must be one of 'CREATE','UPDATE','DELETE','IGNORE'")
}

// ActionColumn is the workbook column header holding the row action.
const ActionColumn = "Action"
