package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/drill/internal/model"
	"github.com/pavelanni/drill/internal/practice"
)

// Templates holds the built-in explanation prompts.
//
//go:embed templates/*.txt
var Templates embed.FS

const maxTextRunes = 10000

var (
	lineBreakRegex = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>`)
	markupRegex    = regexp.MustCompile(`<[^>]*>`)
	blankRunRegex  = regexp.MustCompile(`\n{3,}`)
)

// Style selects how thorough an explanation is.
type Style string

const (
	// StyleBrief explains the correct answer in a few sentences.
	StyleBrief Style = "brief"
	// StyleStandard is the default style.
	StyleStandard Style = "standard"
	// StyleDetailed walks through every choice.
	StyleDetailed Style = "detailed"
)

var styles = []Style{StyleBrief, StyleStandard, StyleDetailed}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Style]*template.Template
)

// IsValidStyle reports whether s names a known style.
func IsValidStyle(s string) bool {
	return slices.Contains(styles, Style(s))
}

// Choice is one rendered answer option.
type Choice struct {
	Label    string
	Text     string
	Correct  bool
	Selected bool
}

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Problem   string
	Choices   []Choice
	Reference string
	Answered  bool
	Correct   bool
	Lang      string
}

// Load parses the explanation templates found under templates/ in fsys.
// Only the first call does any work.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Style]*template.Template)
		for _, s := range styles {
			name := "templates/explain_" + string(s) + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(string(s)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			templates[s] = tmpl
		}
	})
	return loadErr
}

// BuildExplainPrompt renders the prompt asking for an explanation of q.
// selected is nil when the learner has not answered yet.
func BuildExplainPrompt(style Style, q model.Question, selected []int, lang string) (string, error) {
	if templates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[style]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid explain style: " + string(style))
	}

	data := ExplainData{
		Problem:   sanitize(q.Problem),
		Reference: sanitize(q.Explanation),
		Answered:  selected != nil,
		Lang:      lang,
	}
	if data.Problem == "" {
		data.Problem = "[No problem text]"
	}
	if data.Lang == "" {
		data.Lang = "en"
	}
	for i, text := range q.Choices {
		data.Choices = append(data.Choices, Choice{
			Label:    Label(i),
			Text:     sanitize(text),
			Correct:  slices.Contains(q.Answers, i),
			Selected: slices.Contains(selected, i),
		})
	}
	if data.Answered {
		data.Correct = practice.Grade(q, selected)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Label returns the letter shown for choice i: A, B, ... Z, then 27, 28, ...
func Label(i int) string {
	if i >= 0 && i < 26 {
		return string(rune('A' + i))
	}
	return strconv.Itoa(i + 1)
}

// sanitize turns question markup into plain text. Tags are stripped so that
// imported content cannot close the prompt's own delimiters.
func sanitize(s string) string {
	s = lineBreakRegex.ReplaceAllString(s, "\n")
	s = markupRegex.ReplaceAllString(s, "")
	s = blankRunRegex.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > maxTextRunes {
		runes := []rune(s)
		s = string(runes[:maxTextRunes]) + "\n\n[Text truncated due to length]"
	}
	return s
}
