package aicontext

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		kind    Kind
		mime    string
		wantErr error
	}{
		{name: "report.txt", data: "hello", kind: KindDocument, mime: "text/plain"},
		{name: "README.md", data: "# brand", kind: KindDocument, mime: "text/md"},
		{name: "mentions.CSV", data: "a,b\n1,2\n", kind: KindTabular, mime: "text/csv"},
		{name: "feed.json", data: `{"a":1}`, kind: KindDocument, mime: "application/json"},
		{name: "clip.mov", data: "anything", wantErr: ErrVideoNotSupported},
		{name: "clip.webm", data: "", wantErr: ErrVideoNotSupported},
		{name: "empty.txt", data: "", wantErr: ErrEmptyFile},
		{name: "deck.pptx", data: "x", wantErr: ErrUnsupportedFileType},
		{name: "fake.pdf", data: "not a pdf", wantErr: ErrUnsupportedFileType},
		{name: "fake.xlsx", data: "a,b", wantErr: ErrUnsupportedFileType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls, err := Classify(tc.name, []byte(tc.data))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if !IsValidationError(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if cls.Kind != tc.kind || cls.MIMEType != tc.mime {
				t.Fatalf("unexpected classification %+v", cls)
			}
		})
	}
}

func TestClassify_PDF(t *testing.T) {
	cls, err := Classify("brief.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cls.MIMEType != "application/pdf" {
		t.Fatalf("unexpected mime %q", cls.MIMEType)
	}
}
