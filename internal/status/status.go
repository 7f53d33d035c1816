// Package status decodes raw stream records into the fields geostream emits.
package status

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

const (
	PathScreenName = "user.screen_name"
	PathText       = "text"
	PathCreatedAt  = "created_at"
)

var (
	// ErrParse marks any record that cannot be turned into a Message.
	ErrParse = errors.New("status parse error")
	// ErrMalformed is returned for records that are not a JSON object.
	ErrMalformed = fmt.Errorf("%w: malformed record", ErrParse)
	// ErrMissingField is returned when a required field is absent or not a string.
	ErrMissingField = fmt.Errorf("%w: missing field", ErrParse)
	// ErrNotice is returned for stream control notices such as limit or delete.
	ErrNotice = fmt.Errorf("%w: stream notice", ErrParse)
)

// noticeKeys are the top-level keys of the control messages interleaved with statuses.
var noticeKeys = []string{"limit", "delete", "scrub_geo", "status_withheld", "user_withheld", "disconnect", "warning"}

// Message is one decoded status.
type Message struct {
	ScreenName string
	Text       string
	CreatedAt  string
	Raw        string
}

// Decode extracts the emitted fields from raw. Raw is carried through verbatim.
func Decode(raw string) (Message, error) {
	if !gjson.Valid(raw) {
		return Message{}, ErrMalformed
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		return Message{}, ErrMalformed
	}

	values := gjson.GetMany(raw, PathScreenName, PathText, PathCreatedAt)
	paths := []string{PathScreenName, PathText, PathCreatedAt}
	for i, v := range values {
		if v.Type == gjson.String {
			continue
		}
		// Only records that are not statuses are classified as notices.
		for _, key := range noticeKeys {
			if doc.Get(key).Exists() {
				return Message{}, fmt.Errorf("%w %q", ErrNotice, key)
			}
		}
		return Message{}, fmt.Errorf("%w %q", ErrMissingField, paths[i])
	}

	return Message{
		ScreenName: values[0].Str,
		Text:       values[1].Str,
		CreatedAt:  values[2].Str,
		Raw:        raw,
	}, nil
}

// Reason classifies a Decode error for counting skipped records.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotice):
		return "notice"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	default:
		return "malformed"
	}
}
