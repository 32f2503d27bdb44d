package processor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var errNoDocumentXML = errors.New("word/document.xml not found")

// documentXML mirrors the parts of word/document.xml we read
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

// paragraph collects the visible text of a w:p in document order, including
// runs nested in hyperlinks. Tabs and breaks inside runs become whitespace.
type paragraph struct {
	Text string
}

func (p *paragraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth, inRun := 0, 0

	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "pPr":
				// tab stop definitions live here
				if err := d.Skip(); err != nil {
					return err
				}
				continue
			case "t":
				if inRun > 0 {
					var t textElement
					if err := d.DecodeElement(&t, &el); err != nil {
						return err
					}
					sb.WriteString(t.Content)
					continue
				}
			case "tab":
				if inRun > 0 {
					sb.WriteByte('\t')
				}
			case "br", "cr":
				if inRun > 0 {
					sb.WriteByte('\n')
				}
			case "r":
				inRun++
			}
			depth++
		case xml.EndElement:
			if depth == 0 {
				p.Text = sb.String()
				return nil
			}
			if el.Name.Local == "r" {
				inRun--
			}
			depth--
		}
	}
}

type textElement struct {
	Content string `xml:",chardata"`
}

// ExtractDOCX returns the body paragraphs of a DOCX file joined by newlines.
func ExtractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx archive: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read document.xml: %w", err)
		}

		return parseDocumentXML(content)
	}

	return "", errNoDocumentXML
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("failed to parse document.xml: %w", err)
	}

	paras := make([]string, 0, len(doc.Body.Paragraphs))
	for _, para := range doc.Body.Paragraphs {
		paras = append(paras, para.Text)
	}

	return strings.Join(paras, "\n"), nil
}
