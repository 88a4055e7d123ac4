package models

import (
	"net/url"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// OrderedForm holds form fields and encodes them in the order in which they were set
type OrderedForm struct {
	*orderedmap.OrderedMap[string, string]
}

func NewOrderedForm() OrderedForm {
	return OrderedForm{orderedmap.New[string, string]()}
}

// Encode returns the fields in the application/x-www-form-urlencoded format
func (f OrderedForm) Encode() string {
	if f.OrderedMap == nil {
		return ""
	}
	var buf strings.Builder
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(pair.Key))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(pair.Value))
	}
	return buf.String()
}

func (f OrderedForm) Keys() []string {
	if f.OrderedMap == nil {
		return []string{}
	}
	keys := make([]string, 0, f.Len())
	for pair := f.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (f OrderedForm) MarshalText() (data []byte, err error) {
	return []byte(f.Encode()), nil
}
