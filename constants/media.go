package constants

import "strings"

// Media types routed through registered extractors.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MediaTypeCSV  = "text/csv"
)

// DocumentMediaTypes are the non-image types the extraction service handles.
var DocumentMediaTypes = []string{MediaTypePDF, MediaTypeDOCX, MediaTypePPTX, MediaTypeCSV}

// IsPlainText reports whether the media type bypasses extraction entirely:
// the raw bytes are taken as the extracted text. CSV is not plain text here;
// it goes through an extractor like any other document.
func IsPlainText(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "text/plain" || mt == "text/markdown"
}

// IsImage reports whether the media type is routed to the OCR extractor.
func IsImage(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}

// PIICategories is the fixed category set passed to the redactor.
var PIICategories = []string{
	"PHONE_NUMBER",
	"EMAIL_ADDRESS",
	"PERSON",
	"LOCATION",
	"AGE",
}
