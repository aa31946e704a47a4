package normalize

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// CommandSegments parses cmd as bash and returns every simple command it
// contains, including those inside pipelines, lists, subshells and command
// substitutions, each rendered as space-joined words with quoting and
// backslash escapes removed. Input is passed through Command first. A
// command that does not parse yields nil; callers still match the flat
// form.
func CommandSegments(cmd string) []string {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(Command(cmd)), "")
	if err != nil {
		return nil
	}

	var segments []string
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok || len(call.Args) == 0 {
			return true
		}
		words := make([]string, 0, len(call.Args))
		for _, w := range call.Args {
			words = append(words, wordText(w))
		}
		segments = append(segments, strings.Join(words, " "))
		return true
	})
	return segments
}

// wordText renders a word the way the shell would see it after quote
// removal. Expansions are kept in their source form.
func wordText(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		writePart(&sb, part, false)
	}
	return sb.String()
}

func writePart(sb *strings.Builder, part syntax.WordPart, quoted bool) {
	switch p := part.(type) {
	case *syntax.Lit:
		if quoted {
			sb.WriteString(p.Value)
		} else {
			sb.WriteString(strings.ReplaceAll(p.Value, `\`, ""))
		}
	case *syntax.SglQuoted:
		sb.WriteString(p.Value)
	case *syntax.DblQuoted:
		for _, inner := range p.Parts {
			writePart(sb, inner, true)
		}
	default:
		_ = syntax.NewPrinter().Print(sb, part)
	}
}
