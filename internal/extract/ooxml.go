package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// textParagraph collects the visible text of a WordprocessingML or DrawingML paragraph,
// including runs nested in hyperlinks and fields.
type textParagraph struct {
	Text string
}

func (p *textParagraph) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	stack := []string{start.Name.Local}
	for len(stack) > 0 {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			parent := stack[len(stack)-1]
			stack = append(stack, t.Name.Local)
			// tab stops in paragraph properties are also named tab
			switch {
			case t.Name.Local == "tab" && parent == "r":
				sb.WriteString("\t")
			case (t.Name.Local == "br" || t.Name.Local == "cr") && (parent == "r" || parent == "p"):
				sb.WriteString("\n")
			}
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if stack[len(stack)-1] == "t" {
				sb.Write(t)
			}
		}
	}
	p.Text = sb.String()
	return nil
}

func readZipEntry(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("missing archive entry %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func indexZip(r *zip.Reader) map[string]*zip.File {
	files := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		files[f.Name] = f
	}
	return files
}
