package transcript

import (
	"strings"

	"goon_chat/pkg/ui/components/utils"
	"goon_chat/pkg/ui/styles"

	"github.com/mattn/go-runewidth"
)

const bulletPrefix = "• "

// renderMarkdown renders the subset of markdown replies tend to use: bold
// spans, headings, bullets, fenced code and pipe tables. Every returned line
// fits in width display cells.
func renderMarkdown(content string, width int) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	rawLines := strings.Split(sanitize(normalized), "\n")

	var rendered []string
	inCode := false
	for i := 0; i < len(rawLines); i++ {
		line := strings.ReplaceAll(rawLines[i], "\t", "    ")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inCode = !inCode
			continue
		}
		if inCode {
			rendered = append(rendered, renderCodeLine(line, width)...)
			continue
		}

		if isTableRow(line) {
			start := i
			for i < len(rawLines) && isTableRow(rawLines[i]) {
				i++
			}
			rendered = append(rendered, renderTable(rawLines[start:i], width)...)
			i--
			continue
		}

		switch {
		case trimmed == "":
			rendered = append(rendered, "")
		case strings.HasPrefix(trimmed, "#"):
			heading := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			rendered = append(rendered, utils.WrapIndented(styles.TitleStyle.Render(heading), width, "")...)
		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			item := styleInline(trimmed[2:])
			rendered = append(rendered, utils.WrapIndented(bulletPrefix+item, width, "  ")...)
		default:
			rendered = append(rendered, utils.WrapIndented(styleInline(trimmed), width, "")...)
		}
	}

	if len(rendered) == 0 {
		return []string{""}
	}
	return rendered
}

// styleInline renders **bold** spans; an unmatched marker is kept literally.
func styleInline(line string) string {
	parts := strings.Split(line, "**")
	if len(parts)%2 == 0 {
		return styles.TextStyle.Render(line)
	}
	var sb strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i%2 == 1 {
			sb.WriteString(styles.TextBoldStyle.Render(part))
		} else {
			sb.WriteString(styles.TextStyle.Render(part))
		}
	}
	return sb.String()
}

func renderCodeLine(line string, width int) []string {
	if width <= 0 {
		return []string{line}
	}
	parts := utils.SplitByWidth(line, width)
	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		lines = append(lines, styles.CodeStyle.Render(utils.PadPlain(part, width)))
	}
	return lines
}

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "|") && strings.Count(trimmed, "|") >= 2
}

func splitTableRow(line string) []string {
	trimmed := strings.Trim(strings.TrimSpace(line), "|")
	cells := strings.Split(trimmed, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, cell := range cells {
		clean := strings.Trim(cell, ":")
		if len(clean) < 3 || strings.Trim(clean, "-") != "" {
			return false
		}
	}
	return len(cells) > 0
}

// renderTable lays out a pipe table with columns sized to their widest
// cell, shrinking the widest column first when the table does not fit.
func renderTable(block []string, width int) []string {
	var rows [][]string
	header := false
	for i, line := range block {
		cells := splitTableRow(line)
		if i == 1 && isSeparatorRow(cells) {
			header = true
			continue
		}
		rows = append(rows, cells)
	}

	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	budget := width - (3*cols + 1)
	if budget < cols {
		out := make([]string, 0, len(rows))
		for _, row := range rows {
			out = append(out, styles.TextStyle.Render(utils.TrimToWidth(strings.Join(row, " | "), width)))
		}
		return out
	}
	shrinkColumns(widths, budget)

	out := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		var sb strings.Builder
		sb.WriteString("|")
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			sb.WriteString(" " + utils.FitWidth(cell, widths[c]) + " |")
		}
		if header && i == 0 {
			out = append(out, styles.TextBoldStyle.Render(sb.String()))
			sep := "|"
			for _, w := range widths {
				sep += " " + strings.Repeat("-", w) + " |"
			}
			out = append(out, styles.TextStyle.Render(sep))
			continue
		}
		out = append(out, styles.TextStyle.Render(sb.String()))
	}
	return out
}

func shrinkColumns(widths []int, budget int) {
	total := 0
	for _, w := range widths {
		total += w
	}
	for total > budget {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= 1 {
			return
		}
		widths[widest]--
		total--
	}
}

// sanitize drops control characters other than newline and tab.
func sanitize(content string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, content)
}
