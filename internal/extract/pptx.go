package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"prepbot/internal/document"
)

type presentationXML struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

type relationshipsXML struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type slideXML struct {
	Shapes []struct {
		TxBody *struct {
			Paragraphs []textParagraph `xml:"p"`
		} `xml:"txBody"`
	} `xml:"cSld>spTree>sp"`
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// extractPPTX emits one chunk per slide whose text shapes carry any text, labelled "Slide N".
func extractPPTX(file string) ([]document.Chunk, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	files := indexZip(&zr.Reader)
	var chunks []document.Chunk
	for i, name := range slideOrder(files) {
		raw, err := readZipEntry(files, name)
		if err != nil {
			return nil, fmt.Errorf("read pptx slide %d: %w", i+1, err)
		}
		var slide slideXML
		if err := xml.Unmarshal(raw, &slide); err != nil {
			return nil, fmt.Errorf("parse pptx slide %d: %w", i+1, err)
		}

		var texts []string
		for _, shape := range slide.Shapes {
			if shape.TxBody == nil {
				continue
			}
			paras := make([]string, 0, len(shape.TxBody.Paragraphs))
			for _, p := range shape.TxBody.Paragraphs {
				paras = append(paras, p.Text)
			}
			texts = append(texts, strings.Join(paras, "\n"))
		}

		content := strings.TrimSpace(strings.Join(texts, "\n"))
		if content == "" {
			continue
		}
		chunks = append(chunks, textChunk(file, content, fmt.Sprintf("Slide %d", i+1)))
	}
	return chunks, nil
}

// slideOrder follows the presentation's slide list, falling back to slide file numbering.
func slideOrder(files map[string]*zip.File) []string {
	if order := presentationOrder(files); len(order) > 0 {
		return order
	}

	type numbered struct {
		name string
		n    int
	}
	var slides []numbered
	for name := range files {
		m := slideName.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, numbered{name: name, n: n})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

func presentationOrder(files map[string]*zip.File) []string {
	rawPres, err := readZipEntry(files, "ppt/presentation.xml")
	if err != nil {
		return nil
	}
	rawRels, err := readZipEntry(files, "ppt/_rels/presentation.xml.rels")
	if err != nil {
		return nil
	}

	var pres presentationXML
	if err := xml.Unmarshal(rawPres, &pres); err != nil {
		return nil
	}
	var rels relationshipsXML
	if err := xml.Unmarshal(rawRels, &rels); err != nil {
		return nil
	}

	targets := make(map[string]string, len(rels.Relationships))
	for _, r := range rels.Relationships {
		targets[r.ID] = r.Target
	}

	var names []string
	for _, id := range pres.SlideIDs {
		target, ok := targets[id.RID]
		if !ok {
			return nil
		}
		name := resolveTarget(target)
		if _, ok := files[name]; !ok {
			return nil
		}
		names = append(names, name)
	}
	return names
}

func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join("ppt", target))
}
