package product

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
)

const (
	StatusUpdate = "UPDATE"
	StatusDelete = "DELETE"
)

// Well-known property keys. Producers may set any other key; consumers that do
// not recognise a key must carry it through untouched.
const (
	PropertyEventSource     = "eventsource"
	PropertyEventSourceCode = "eventsourcecode"
	PropertyEventTime       = "eventtime"
	PropertyMagnitude       = "magnitude"
	PropertyLatitude        = "latitude"
	PropertyLongitude       = "longitude"
	PropertyDepth           = "depth"
	PropertyVersion         = "version"
)

// Product is a versioned unit of earthquake data: an ID, metadata and zero or
// more contents. A product is signed once, after all mutation; changing it
// afterwards makes verification fail.
type Product struct {
	ID         ID
	Status     string
	Properties map[string]string
	Links      map[string][]*url.URL
	Contents   map[string]Content
	TrackerURL *url.URL
	Signature  string
}

func New(id ID) *Product {
	return NewWithStatus(id, StatusUpdate)
}

func NewWithStatus(id ID, status string) *Product {
	return &Product{
		ID:         id,
		Status:     status,
		Properties: make(map[string]string),
		Links:      make(map[string][]*url.URL),
		Contents:   make(map[string]Content),
	}
}

func (p *Product) IsDeleted() bool {
	return strings.EqualFold(p.Status, StatusDelete)
}

// AddLink appends href to relation, keeping the order links were added.
func (p *Product) AddLink(relation string, href *url.URL) {
	if p.Links == nil {
		p.Links = make(map[string][]*url.URL)
	}
	p.Links[relation] = append(p.Links[relation], href)
}

func (p *Product) SetContent(path string, content Content) {
	if p.Contents == nil {
		p.Contents = make(map[string]Content)
	}
	p.Contents[path] = content
}

func (p *Product) property(key string) (string, bool) {
	v, ok := p.Properties[key]
	return v, ok
}

func (p *Product) setProperty(key, value string) {
	if p.Properties == nil {
		p.Properties = make(map[string]string)
	}
	if value == "" {
		delete(p.Properties, key)
		return
	}
	p.Properties[key] = value
}

func (p *Product) EventSource() (string, bool) {
	return p.property(PropertyEventSource)
}

func (p *Product) SetEventSource(source string) {
	p.setProperty(PropertyEventSource, strings.ToLower(source))
}

func (p *Product) EventSourceCode() (string, bool) {
	return p.property(PropertyEventSourceCode)
}

func (p *Product) SetEventSourceCode(code string) {
	p.setProperty(PropertyEventSourceCode, strings.ToLower(code))
}

func (p *Product) SetEventID(source, code string) {
	p.SetEventSource(source)
	p.SetEventSourceCode(code)
}

// EventID is the lowercase concatenation of event source and event source
// code. It is undefined unless both properties are present.
func (p *Product) EventID() (string, bool) {
	source, ok := p.EventSource()
	if !ok {
		return "", false
	}
	code, ok := p.EventSourceCode()
	if !ok {
		return "", false
	}
	return strings.ToLower(source + code), true
}

func (p *Product) EventTime() (time.Time, bool, error) {
	v, ok := p.property(PropertyEventTime)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("property %s: %w", PropertyEventTime, err)
	}
	return t, true, nil
}

func (p *Product) SetEventTime(t time.Time) {
	if t.IsZero() {
		p.setProperty(PropertyEventTime, "")
		return
	}
	p.setProperty(PropertyEventTime, FormatTime(t))
}

func (p *Product) Magnitude() (*apd.Decimal, error) { return p.decimal(PropertyMagnitude) }
func (p *Product) Latitude() (*apd.Decimal, error)  { return p.decimal(PropertyLatitude) }
func (p *Product) Longitude() (*apd.Decimal, error) { return p.decimal(PropertyLongitude) }
func (p *Product) Depth() (*apd.Decimal, error)     { return p.decimal(PropertyDepth) }

func (p *Product) SetMagnitude(d *apd.Decimal) { p.setDecimal(PropertyMagnitude, d) }
func (p *Product) SetLatitude(d *apd.Decimal)  { p.setDecimal(PropertyLatitude, d) }
func (p *Product) SetLongitude(d *apd.Decimal) { p.setDecimal(PropertyLongitude, d) }
func (p *Product) SetDepth(d *apd.Decimal)     { p.setDecimal(PropertyDepth, d) }

// decimal returns nil without error when the property is absent.
func (p *Product) decimal(key string) (*apd.Decimal, error) {
	v, ok := p.property(key)
	if !ok {
		return nil, nil
	}
	d, _, err := apd.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("property %s: invalid decimal %q: %w", key, v, err)
	}
	return d, nil
}

func (p *Product) setDecimal(key string, d *apd.Decimal) {
	if d == nil {
		p.setProperty(key, "")
		return
	}
	p.setProperty(key, d.Text('f'))
}

func (p *Product) Version() (string, bool) {
	return p.property(PropertyVersion)
}

func (p *Product) SetVersion(version string) {
	p.setProperty(PropertyVersion, version)
}
