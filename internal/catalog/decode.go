package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/agora/internal/textutil"
)

// envelope covers the wrapped list shapes the upstream API has used.
type envelope struct {
	Assistants []json.RawMessage `json:"assistants"`
	Data       []json.RawMessage `json:"data"`
}

// rawAssistant mirrors one upstream record. Only these fields are
// interpreted; the full record is kept in Assistant.Raw.
type rawAssistant struct {
	ID          json.RawMessage `json:"id"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Tags        labelList       `json:"tags"`
	Roles       labelList       `json:"roles"`
}

// labelList accepts ["a","b"] as well as [{"name":"a"},{"name":"b"}].
type labelList []string

func (l *labelList) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err == nil {
		*l = names
		return nil
	}
	var objs []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &objs); err != nil {
		return fmt.Errorf("labels must be strings or {name} objects: %w", err)
	}
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		if o.Name != "" {
			out = append(out, o.Name)
		}
	}
	*l = out
	return nil
}

// decodeCatalog parses a catalog body. Individual records that are not
// valid assistants are skipped and counted; a body that is not a record
// list, or a list where no record is valid, is ErrMalformedCatalog.
func decodeCatalog(data []byte) (assistants []Assistant, skipped int, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: empty response body", ErrMalformedCatalog)
	}

	var records []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrMalformedCatalog, err)
		}
		switch {
		case env.Assistants != nil:
			records = env.Assistants
		case env.Data != nil:
			records = env.Data
		default:
			return nil, 0, fmt.Errorf("%w: no assistants or data list in response", ErrMalformedCatalog)
		}
	default:
		return nil, 0, fmt.Errorf("%w: expected a JSON array or object", ErrMalformedCatalog)
	}

	assistants = make([]Assistant, 0, len(records))
	for _, rec := range records {
		a, err := decodeAssistant(rec)
		if err != nil {
			skipped++
			continue
		}
		assistants = append(assistants, a)
	}
	if len(records) > 0 && len(assistants) == 0 {
		return nil, skipped, fmt.Errorf("%w: none of %d records is a valid assistant", ErrMalformedCatalog, len(records))
	}
	return assistants, skipped, nil
}

func decodeAssistant(rec json.RawMessage) (Assistant, error) {
	var raw rawAssistant
	if err := json.Unmarshal(rec, &raw); err != nil {
		return Assistant{}, err
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return Assistant{}, err
	}

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = strings.TrimSpace(raw.Name)
	}
	if title == "" {
		return Assistant{}, fmt.Errorf("assistant %s has no title", id)
	}

	return Assistant{
		ID:          id,
		Title:       title,
		Description: textutil.StripHTML(raw.Description),
		Tags:        trimLabels(raw.Tags),
		Roles:       trimLabels(raw.Roles),
		Raw:         append(json.RawMessage(nil), rec...),
	}, nil
}

// decodeID accepts string and numeric ids.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("empty id")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("id must be a string or number: %w", err)
	}
	return n.String(), nil
}

func trimLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
