// Package storage locates product documents for a product id and fetches
// them back over HTTP.
package storage

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"pdlbus/internal/product"
	pkgerrors "pdlbus/pkg/errors"
)

// DefaultURLTemplate matches the layout written by DirectoryStore when the
// directory is served at http://localhost/products/.
const DefaultURLTemplate = "http://localhost/products/{source}/{type}/{code}/{updateTime}.json"

type Resolver interface {
	ResolveProductURL(id product.ID) (*url.URL, error)
}

// TemplateResolver expands {source}, {type}, {code} and {updateTime} (unix
// milliseconds) into a URL. Values are path-escaped.
type TemplateResolver struct {
	template string
}

func NewTemplateResolver(template string) (*TemplateResolver, error) {
	if template == "" {
		template = DefaultURLTemplate
	}

	probe := expand(template, product.ID{Source: "s", Type: "t", Code: "c"})
	u, err := url.Parse(probe)
	if err != nil {
		return nil, pkgerrors.ErrConfiguration.WithMessage(fmt.Sprintf("storage.url_template is not a valid url: %v", err))
	}
	if !u.IsAbs() {
		return nil, pkgerrors.ErrConfiguration.WithMessage("storage.url_template must be absolute")
	}
	if !strings.Contains(template, "{code}") {
		return nil, pkgerrors.ErrConfiguration.WithMessage("storage.url_template must contain {code}")
	}

	return &TemplateResolver{template: template}, nil
}

func (r *TemplateResolver) ResolveProductURL(id product.ID) (*url.URL, error) {
	if err := id.Validate(); err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(err)
	}
	u, err := url.Parse(expand(r.template, id))
	if err != nil {
		return nil, pkgerrors.ErrValidation.WithCause(err)
	}
	return u, nil
}

func expand(template string, id product.ID) string {
	return strings.NewReplacer(
		"{source}", url.PathEscape(id.Source),
		"{type}", url.PathEscape(id.Type),
		"{code}", url.PathEscape(id.Code),
		"{updateTime}", strconv.FormatInt(id.UpdateTime.UnixMilli(), 10),
	).Replace(template)
}

// RelativePath is the location of id below a DirectoryStore root.
func RelativePath(id product.ID) string {
	return strings.Join([]string{
		url.PathEscape(id.Source),
		url.PathEscape(id.Type),
		url.PathEscape(id.Code),
		strconv.FormatInt(id.UpdateTime.UnixMilli(), 10) + ".json",
	}, "/")
}
