package parser

import (
	"testing"
)

func TestPDFParser_MimeType(t *testing.T) {
	p := NewPDFParser()
	if p.MimeType() != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", p.MimeType())
	}
}

func TestPDFParser_CanParse(t *testing.T) {
	p := NewPDFParser()

	tests := []struct {
		mimeType string
		want     bool
	}{
		{"application/pdf", true},
		{"text/plain", false},
		{"text/markdown", false},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			got := p.CanParse(tt.mimeType)
			if got != tt.want {
				t.Errorf("CanParse(%s) = %v, want %v", tt.mimeType, got, tt.want)
			}
		})
	}
}

func TestPDFParser_ParseInvalidPDF(t *testing.T) {
	p := NewPDFParser()

	content := []byte("not a pdf file")

	_, err := p.Parse("spec.pdf", content)
	if err == nil {
		t.Error("expected error for invalid PDF content")
	}
}

// Parsing a real PDF needs a properly formatted fixture file; text
// extraction is covered by integration runs against exported specs.
