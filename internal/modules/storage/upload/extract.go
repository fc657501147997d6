package upload

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const (
	mimeText = "text/plain"
	mimeZip  = "application/zip"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	docxBody       = "word/document.xml"
	maxDocumentXML = 64 << 20
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExtractText returns the text of the file at path. ext selects the expected
// format and the sniffed content type must agree with it.
func ExtractText(path, ext string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect file type: %w", err)
	}

	switch strings.ToLower(ext) {
	case ".txt", ".md", ".markdown":
		if !isA(mt, mimeText) {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt.String())
		}
		return readText(path)
	case ".docx":
		if !mt.Is(mimeDocx) && !isA(mt, mimeZip) {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt.String())
		}
		return readDocx(path)
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
}

func isA(mt *mimetype.MIME, expected string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(expected) {
			return true
		}
	}
	return false
}

func readText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedFormat)
	}
	return string(raw), nil
}

func readDocx(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != docxBody {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return documentText(io.LimitReader(rc, maxDocumentXML))
	}
	return "", fmt.Errorf("%w: missing %s", ErrUnsupportedFormat, docxBody)
}

// documentText collects the runs of a WordprocessingML body. Paragraphs and
// breaks become newlines, tabs stay tabs.
func documentText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
