package domain

type FieldType string

const (
	FieldText           FieldType = "TEXT"
	FieldParagraphText  FieldType = "PARAGRAPH_TEXT"
	FieldMultipleChoice FieldType = "MULTIPLE_CHOICE"
	FieldCheckbox       FieldType = "CHECKBOX"
	FieldList           FieldType = "LIST"
	FieldScale          FieldType = "SCALE"
	FieldRating         FieldType = "RATING"
	FieldGrid           FieldType = "GRID"
	FieldCheckboxGrid   FieldType = "CHECKBOX_GRID"
	FieldDate           FieldType = "DATE"
	FieldTime           FieldType = "TIME"
	FieldFileUpload     FieldType = "FILE_UPLOAD"
)

// Field is one item of a form as reported by the form backend. Only the
// metadata relevant to its Type is populated.
type Field struct {
	ID         string    `json:"id" yaml:"id"`
	Type       FieldType `json:"type" yaml:"type"`
	Title      string    `json:"title" yaml:"title"`
	Choices    []string  `json:"choices,omitempty" yaml:"choices,omitempty"`
	LowerBound int       `json:"lowerBound,omitempty" yaml:"lowerBound,omitempty"`
	UpperBound int       `json:"upperBound,omitempty" yaml:"upperBound,omitempty"`
	Rows       []string  `json:"rows,omitempty" yaml:"rows,omitempty"`
	Columns    []string  `json:"columns,omitempty" yaml:"columns,omitempty"`
}

// Answer values are string, []string, int, or [][]string depending on the
// field type.
type Answer struct {
	FieldID string    `json:"fieldId"`
	Title   string    `json:"title"`
	Type    FieldType `json:"type"`
	Value   any       `json:"value"`
}

type Response struct {
	FormID  string   `json:"formId"`
	Answers []Answer `json:"answers"`
}

// Has reports whether the response carries an answer for fieldID.
func (r Response) Has(fieldID string) bool {
	for _, a := range r.Answers {
		if a.FieldID == fieldID {
			return true
		}
	}
	return false
}

// Form is the field list of one form as resolved by a form backend.
type Form struct {
	ID    string  `json:"id" yaml:"id"`
	Title string  `json:"title,omitempty" yaml:"title,omitempty"`
	Items []Field `json:"items" yaml:"items"`
}
