package product

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	idURNPrefix = "urn:usgs-product:"
	idSeparator = ":"
)

// ID identifies one version of a product. Source, Type and Code name the
// logical product; UpdateTime orders its versions.
type ID struct {
	Source     string
	Type       string
	Code       string
	UpdateTime time.Time
}

func NewID(source, productType, code string, updateTime time.Time) ID {
	return ID{
		Source:     source,
		Type:       productType,
		Code:       code,
		UpdateTime: Truncate(updateTime),
	}
}

func (id ID) Equal(other ID) bool {
	return id.IsSameProduct(other) && id.UpdateTime.Equal(other.UpdateTime)
}

func (id ID) IsSameProduct(other ID) bool {
	return id.Source == other.Source && id.Type == other.Type && id.Code == other.Code
}

// Supersedes reports whether id is a strictly newer version of the same
// logical product as other.
func (id ID) Supersedes(other ID) bool {
	return id.IsSameProduct(other) && id.UpdateTime.After(other.UpdateTime)
}

// Validate requires every field. Source, Type and Code must not contain the
// URN separator, so distinct ids never render to the same String.
func (id ID) Validate() error {
	fields := []struct {
		name, value string
	}{
		{"source", id.Source},
		{"type", id.Type},
		{"code", id.Code},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("product id %s is required", f.name)
		}
		if strings.Contains(f.value, idSeparator) {
			return fmt.Errorf("product id %s %q must not contain %q", f.name, f.value, idSeparator)
		}
	}
	if id.UpdateTime.IsZero() {
		return fmt.Errorf("product id update time is required")
	}
	return nil
}

// String renders the id as urn:usgs-product:source:type:code:millis.
func (id ID) String() string {
	return fmt.Sprintf("%s%s:%s:%s:%d", idURNPrefix, id.Source, id.Type, id.Code, id.UpdateTime.UnixMilli())
}

func ParseID(urn string) (ID, error) {
	if !strings.HasPrefix(urn, idURNPrefix) {
		return ID{}, fmt.Errorf("invalid product id %q: missing %s prefix", urn, idURNPrefix)
	}

	parts := strings.Split(strings.TrimPrefix(urn, idURNPrefix), idSeparator)
	if len(parts) != 4 {
		return ID{}, fmt.Errorf("invalid product id %q: expected 4 fields, got %d", urn, len(parts))
	}

	millis, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return ID{}, fmt.Errorf("invalid product id %q: bad update time: %w", urn, err)
	}

	id := NewID(parts[0], parts[1], parts[2], time.UnixMilli(millis))
	if err := id.Validate(); err != nil {
		return ID{}, fmt.Errorf("invalid product id %q: %w", urn, err)
	}
	return id, nil
}
