package pdf

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind classifies a payload for merging.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindJPEG        Kind = "jpeg"
	KindPNG         Kind = "png"
	KindWEBP        Kind = "webp"
	KindUnsupported Kind = "unsupported"
)

// IsImage reports whether the kind is rendered as an image page.
func (k Kind) IsImage() bool {
	return k == KindJPEG || k == KindPNG || k == KindWEBP
}

// Extension returns the canonical file extension for the kind.
func (k Kind) Extension() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindJPEG:
		return "jpg"
	case KindPNG:
		return "png"
	case KindWEBP:
		return "webp"
	default:
		return ""
	}
}

// DetectKind resolves the payload kind from the declared MIME type, sniffing the
// bytes when the declared type is missing or generic.
func DetectKind(declared string, data []byte) Kind {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if kind := kindFromMIME(declared); kind != KindUnsupported {
		return kind
	}
	if declared != "" && declared != "application/octet-stream" && declared != "binary/octet-stream" {
		return KindUnsupported
	}
	if len(data) == 0 {
		return KindUnsupported
	}
	return kindFromMIME(mimetype.Detect(data).String())
}

// SniffMIME returns the detected MIME type of data.
func SniffMIME(data []byte) string {
	return mimetype.Detect(data).String()
}

func kindFromMIME(m string) Kind {
	switch m {
	case "application/pdf", "application/x-pdf":
		return KindPDF
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return KindJPEG
	case "image/png":
		return KindPNG
	case "image/webp":
		return KindWEBP
	default:
		return KindUnsupported
	}
}
