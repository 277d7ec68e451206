package product

import (
	"encoding/json"
	"fmt"
	"net/url"
)

type idDocument struct {
	Source     string `json:"source"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	UpdateTime string `json:"updatetime"`
}

type contentDocument struct {
	Type     string `json:"type"`
	Modified string `json:"modified"`
	Bytes    []byte `json:"bytes"`
}

type productDocument struct {
	ID         idDocument                 `json:"id"`
	Status     string                     `json:"status"`
	Properties map[string]string          `json:"properties,omitempty"`
	Links      map[string][]string        `json:"links,omitempty"`
	Contents   map[string]contentDocument `json:"contents,omitempty"`
	TrackerURL string                     `json:"trackerURL,omitempty"`
	Signature  string                     `json:"signature,omitempty"`
}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.document())
}

func (id *ID) UnmarshalJSON(data []byte) error {
	var doc idDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := doc.toID()
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ID) document() idDocument {
	return idDocument{
		Source:     id.Source,
		Type:       id.Type,
		Code:       id.Code,
		UpdateTime: FormatTime(id.UpdateTime),
	}
}

func (d idDocument) toID() (ID, error) {
	if d.UpdateTime == "" {
		return ID{}, fmt.Errorf("product id updatetime is required")
	}
	t, err := ParseTime(d.UpdateTime)
	if err != nil {
		return ID{}, err
	}
	id := NewID(d.Source, d.Type, d.Code, t)
	if err := id.Validate(); err != nil {
		return ID{}, err
	}
	return id, nil
}

// MarshalJSON renders the full product document with inline content bytes.
// File contents are read at marshal time.
func (p *Product) MarshalJSON() ([]byte, error) {
	doc := productDocument{
		ID:         p.ID.document(),
		Status:     p.Status,
		Properties: p.Properties,
		Signature:  p.Signature,
	}
	if p.TrackerURL != nil {
		doc.TrackerURL = p.TrackerURL.String()
	}

	if len(p.Links) > 0 {
		doc.Links = make(map[string][]string, len(p.Links))
		for relation, hrefs := range p.Links {
			for _, href := range hrefs {
				doc.Links[relation] = append(doc.Links[relation], href.String())
			}
		}
	}

	if len(p.Contents) > 0 {
		doc.Contents = make(map[string]contentDocument, len(p.Contents))
		for path, content := range p.Contents {
			data, err := ReadAll(content)
			if err != nil {
				return nil, fmt.Errorf("failed to read content %q: %w", path, err)
			}
			doc.Contents[path] = contentDocument{
				Type:     content.ContentType(),
				Modified: FormatTime(content.LastModified()),
				Bytes:    data,
			}
		}
	}

	return json.Marshal(doc)
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var doc productDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	id, err := doc.ID.toID()
	if err != nil {
		return err
	}

	status := doc.Status
	if status == "" {
		status = StatusUpdate
	}
	out := NewWithStatus(id, status)
	out.Signature = doc.Signature

	for k, v := range doc.Properties {
		out.Properties[k] = v
	}

	for relation, hrefs := range doc.Links {
		for _, raw := range hrefs {
			href, err := url.Parse(raw)
			if err != nil {
				return fmt.Errorf("invalid link %q: %w", raw, err)
			}
			out.AddLink(relation, href)
		}
	}

	for path, c := range doc.Contents {
		modified, err := ParseTime(c.Modified)
		if err != nil {
			return fmt.Errorf("content %q: %w", path, err)
		}
		out.Contents[path] = NewBytesContent(c.Type, modified, c.Bytes)
	}

	if doc.TrackerURL != "" {
		tracker, err := url.Parse(doc.TrackerURL)
		if err != nil {
			return fmt.Errorf("invalid tracker url %q: %w", doc.TrackerURL, err)
		}
		out.TrackerURL = tracker
	}

	*p = *out
	return nil
}
