package rowmodel

import (
	"fmt"
	"strings"
)

// DocField is the help/reference entry for one workbook column. Used to
// render the data type reference tables and to build template workbooks.
type DocField struct {
	// Name is the workbook column header.
	Name     string `json:"name"`
	Required string `json:"required"`
	Value    string `json:"value,omitempty"`
	Notes    string `json:"notes,omitempty"`
	// OneOf carries the allowed values for enumerated fields.
	OneOf []string `json:"one_of,omitempty"`
}

// DocFields returns the documentation entries for every displayable
// field, including the implicit Action column. Computed once per schema
// and cached for the life of the process.
func (s *Schema) DocFields() []DocField {
	s.docOnce.Do(func() {
		actions := make([]string, 0, len(s.BulkActions)+1)
		for _, action := range s.BulkActions {
			actions = append(actions, string(action))
		}
		actions = append(actions, string(ActionIgnore))

		s.docFields = append(s.docFields, DocField{
			Name:     ActionColumn,
			Required: "Yes",
			Value:    backticked(actions),
			OneOf:    actions,
		})

		for _, field := range s.Fields {
			if field.WBKey == "" {
				continue
			}
			s.docFields = append(s.docFields, docFieldFor(field))
		}
	})
	return s.docFields
}

func docFieldFor(field Field) DocField {
	doc := DocField{
		Name:     field.WBKey,
		Required: field.Doc.Required,
		Value:    field.Doc.Value,
		Notes:    field.Doc.Notes,
		OneOf:    append([]string(nil), field.OneOf...),
	}

	if doc.Required == "" {
		if field.Required {
			doc.Required = "Yes"
		} else if len(field.RequiredFor) > 0 {
			doc.Required = "Conditional"
		} else {
			doc.Required = "No"
		}
	}

	if doc.Value == "" {
		switch {
		case len(field.OneOf) > 0:
			doc.Value = backticked(field.OneOf)
		case field.Kind == KindBool:
			doc.Value = "`Y`,`N`"
		case field.Kind == KindNested:
			doc.Value = fmt.Sprintf("Columns of the form `%s.path.to.setting`", field.WBKey)
		case field.Kind == KindGroup:
			doc.Value = fmt.Sprintf("Numbered columns `%s 1`, `%s 2`, ...", field.WBKey, field.WBKey)
		}
	}

	return doc
}

func backticked(values []string) string {
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = fmt.Sprintf("`%s`", value)
	}
	return strings.Join(quoted, ",")
}
