package logging

import (
	"fmt"
	"strings"
)

type FieldType int

const (
	TypeString FieldType = iota
	TypeInteger
	TypeDecimal
	TypeBoolean
	TypeDate
	TypeStringList
)

func (t FieldType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeStringList:
		return "string_list"
	default:
		return "string"
	}
}

// Field identifies one exportable attribute of an Entry.
type Field struct {
	Group string
	Name  string
	Type  FieldType
}

func (f Field) FullLabel() string {
	if f.Group == "" {
		return f.Name
	}
	return f.Group + "." + f.Name
}

func (f Field) String() string {
	return f.FullLabel()
}

var (
	FieldNumber          = Field{Group: "Entry", Name: "Number", Type: TypeInteger}
	FieldTool            = Field{Group: "Entry", Name: "Tool", Type: TypeString}
	FieldTag             = Field{Group: "Entry", Name: "Tag", Type: TypeString}
	FieldComment         = Field{Group: "Entry", Name: "Comment", Type: TypeString}
	FieldMethod          = Field{Group: "Request", Name: "Method", Type: TypeString}
	FieldURL             = Field{Group: "Request", Name: "URL", Type: TypeString}
	FieldHostname        = Field{Group: "Request", Name: "Hostname", Type: TypeString}
	FieldPath            = Field{Group: "Request", Name: "Path", Type: TypeString}
	FieldQuery           = Field{Group: "Request", Name: "Query", Type: TypeString}
	FieldProtocol        = Field{Group: "Request", Name: "Protocol", Type: TypeString}
	FieldIsSSL           = Field{Group: "Request", Name: "IsSSL", Type: TypeBoolean}
	FieldRequestHeaders  = Field{Group: "Request", Name: "Headers", Type: TypeStringList}
	FieldRequestBody     = Field{Group: "Request", Name: "Body", Type: TypeString}
	FieldRequestLength   = Field{Group: "Request", Name: "Length", Type: TypeInteger}
	FieldRequestTime     = Field{Group: "Request", Name: "Time", Type: TypeDate}
	FieldStatus          = Field{Group: "Response", Name: "Status", Type: TypeInteger}
	FieldStatusText      = Field{Group: "Response", Name: "StatusText", Type: TypeString}
	FieldMimeType        = Field{Group: "Response", Name: "MimeType", Type: TypeString}
	FieldResponseHeaders = Field{Group: "Response", Name: "Headers", Type: TypeStringList}
	FieldResponseBody    = Field{Group: "Response", Name: "Body", Type: TypeString}
	FieldResponseLength  = Field{Group: "Response", Name: "Length", Type: TypeInteger}
	FieldResponseTime    = Field{Group: "Response", Name: "Time", Type: TypeDate}
	FieldRTT             = Field{Group: "Response", Name: "RTT", Type: TypeDecimal}
	FieldComplete        = Field{Group: "Response", Name: "Complete", Type: TypeBoolean}
)

var knownFields = []Field{
	FieldNumber, FieldTool, FieldTag, FieldComment,
	FieldMethod, FieldURL, FieldHostname, FieldPath, FieldQuery, FieldProtocol, FieldIsSSL,
	FieldRequestHeaders, FieldRequestBody, FieldRequestLength, FieldRequestTime,
	FieldStatus, FieldStatusText, FieldMimeType, FieldResponseHeaders, FieldResponseBody,
	FieldResponseLength, FieldResponseTime, FieldRTT, FieldComplete,
}

// KnownFields returns every field an Entry can carry.
func KnownFields() []Field {
	out := make([]Field, len(knownFields))
	copy(out, knownFields)
	return out
}

// FieldByLabel looks a field up by its full label, case-insensitively.
func FieldByLabel(label string) (Field, bool) {
	for _, f := range knownFields {
		if strings.EqualFold(f.FullLabel(), strings.TrimSpace(label)) {
			return f, true
		}
	}
	return Field{}, false
}

func ParseFields(labels []string) ([]Field, error) {
	fields := make([]Field, 0, len(labels))
	for _, label := range labels {
		f, ok := FieldByLabel(label)
		if !ok {
			return nil, fmt.Errorf("unknown field %q", label)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
