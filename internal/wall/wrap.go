package wall

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapText breaks text into lines no wider than width display cells. Words
// longer than width are split.
func wrapText(text string, width int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if width <= 0 {
		return []string{text}
	}
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		lines = append(lines, wrapParagraph(paragraph, width)...)
	}
	return lines
}

func wrapParagraph(paragraph string, width int) []string {
	words := strings.Fields(paragraph)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	var line strings.Builder
	lineWidth := 0
	for _, word := range words {
		for runewidth.StringWidth(word) > width {
			head, tail := splitAtWidth(word, width-lineWidthWithSpace(lineWidth))
			if head == "" {
				lines = append(lines, line.String())
				line.Reset()
				lineWidth = 0
				continue
			}
			if lineWidth > 0 {
				line.WriteByte(' ')
			}
			line.WriteString(head)
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
			word = tail
		}
		wordWidth := runewidth.StringWidth(word)
		if lineWidth > 0 && lineWidth+1+wordWidth > width {
			lines = append(lines, line.String())
			line.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			line.WriteByte(' ')
			lineWidth++
		}
		line.WriteString(word)
		lineWidth += wordWidth
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}

func lineWidthWithSpace(lineWidth int) int {
	if lineWidth == 0 {
		return 0
	}
	return lineWidth + 1
}

func splitAtWidth(word string, width int) (string, string) {
	if width <= 0 {
		return "", word
	}
	used := 0
	for i, r := range word {
		w := runewidth.RuneWidth(r)
		if used+w > width {
			return word[:i], word[i:]
		}
		used += w
	}
	return word, ""
}

// truncate shortens s to width cells, marking the cut with an ellipsis.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
