package hasher

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/h2non/filetype"
)

// classifyConsumer sniffs the first chunk of the stream for a MIME type
// and a human-readable description. Later chunks only advance the byte
// count; classification never needs more than the stream head.
type classifyConsumer struct {
	magic   bool
	mime    bool
	size    int64
	sniffed bool
	labels  map[string]string
}

func newClassifyConsumer(magic, mime bool) *classifyConsumer {
	return &classifyConsumer{magic: magic, mime: mime}
}

func (c *classifyConsumer) Name() string {
	return "classify"
}

func (c *classifyConsumer) Start() error {
	c.size = 0
	c.sniffed = false
	c.labels = make(map[string]string, 2)
	// A zero-byte stream has no first chunk; classify it as empty here
	// so the report still carries the requested labels.
	if c.mime {
		c.labels[labelMIME] = mimetype.Detect(nil).String()
	}
	if c.magic {
		c.labels[labelMagic] = "empty"
	}
	return nil
}

func (c *classifyConsumer) Chunk(p []byte) error {
	if !c.sniffed {
		c.sniff(p)
		c.sniffed = true
	}
	c.size += int64(len(p))
	return nil
}

func (c *classifyConsumer) sniff(p []byte) {
	if c.mime {
		c.labels[labelMIME] = mimetype.Detect(p).String()
	}
	if c.magic {
		c.labels[labelMagic] = describe(p)
	}
}

// describe renders a short human description of the content from its
// magic number, e.g. "PNG data, image/png".
func describe(p []byte) string {
	t, err := filetype.Match(p)
	if err != nil || t == filetype.Unknown {
		return "data"
	}
	return strings.ToUpper(t.Extension) + " data, " + t.MIME.Value
}

func (c *classifyConsumer) End() Partial {
	return Partial{Size: c.size, Labels: c.labels}
}
