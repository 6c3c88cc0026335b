package answer

import (
	"fmt"
	"strings"

	"prepbot/internal/document"
)

const promptTemplate = `You are a helpful technical interview tutor.

Use the following context to answer the user's question:

%s

Question: %s

Answer in a clear, concise, and beginner-friendly way.
`

// BuildPrompt renders each chunk as "[source - page_slide]" followed by its text.
func BuildPrompt(query string, chunks []document.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[%s - %s]\n%s", c.Metadata.Source, c.Metadata.PageSlide, c.Document)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), query)
}
