// Package content turns channel payloads into ordered extraction blocks and
// renders the extraction prompt.
package content

import (
	"mime"
	"strings"
)

// BlockType is the kind of a content block sent to the extractor.
type BlockType string

const (
	BlockText     BlockType = "text"
	BlockImage    BlockType = "image"
	BlockDocument BlockType = "document"
)

// Block is one unit of content. Media blocks carry raw bytes and their MIME
// type; the text block carries the rendered prompt.
type Block struct {
	Type      BlockType
	MediaType string
	Data      []byte
	Text      string
}

// MediaRef is a provider-hosted attachment that must be downloaded.
type MediaRef struct {
	URL         string
	ContentType string
}

// Attachment is media delivered inline with the webhook (email).
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// NormalizeMediaType lowercases a MIME type and strips its parameters.
func NormalizeMediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(ct); err == nil {
		ct = parsed
	}
	ct = strings.ToLower(ct)
	if ct == "image/jpg" || ct == "image/pjpeg" {
		return "image/jpeg"
	}
	return ct
}

// BlockTypeFor maps a MIME type to the block it becomes. ok is false for
// types the extractor cannot read.
func BlockTypeFor(ct string) (BlockType, bool) {
	ct = NormalizeMediaType(ct)
	switch {
	case imageTypes[ct]:
		return BlockImage, true
	case ct == "application/pdf":
		return BlockDocument, true
	default:
		return "", false
	}
}
