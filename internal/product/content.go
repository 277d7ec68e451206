package product

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

// StdinPath is the content key of the single unnamed content of a product.
const StdinPath = ""

// Content is one piece of product data.
type Content interface {
	ContentType() string
	LastModified() time.Time
	Length() int64
	Open() (io.ReadCloser, error)
}

type BytesContent struct {
	Type     string
	Modified time.Time
	Data     []byte
}

func NewBytesContent(contentType string, modified time.Time, data []byte) *BytesContent {
	return &BytesContent{
		Type:     contentType,
		Modified: Truncate(modified),
		Data:     data,
	}
}

func (c *BytesContent) ContentType() string     { return c.Type }
func (c *BytesContent) LastModified() time.Time { return c.Modified }
func (c *BytesContent) Length() int64           { return int64(len(c.Data)) }

func (c *BytesContent) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(c.Data)), nil
}

// FileContent reads its bytes from disk on every Open, so edits to the file
// are visible to later digests.
type FileContent struct {
	Path string
	Type string
}

func NewFileContent(path, contentType string) *FileContent {
	return &FileContent{Path: path, Type: contentType}
}

func (c *FileContent) ContentType() string { return c.Type }

func (c *FileContent) LastModified() time.Time {
	info, err := os.Stat(c.Path)
	if err != nil {
		return time.Time{}
	}
	return Truncate(info.ModTime())
}

func (c *FileContent) Length() int64 {
	info, err := os.Stat(c.Path)
	if err != nil {
		return -1
	}
	return info.Size()
}

func (c *FileContent) Open() (io.ReadCloser, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open content %s: %w", c.Path, err)
	}
	return f, nil
}

// ReadAll loads the full content into memory.
func ReadAll(c Content) ([]byte, error) {
	r, err := c.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
