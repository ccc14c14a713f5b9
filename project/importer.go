package project

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultChapterPattern matches conventional Chinese chapter headings
// ("第…章 …") at the start of a line.
const DefaultChapterPattern = "^第.+章.*"

// ChapterPreview is a dry-run import result: title plus word count, no files
// touched.
type ChapterPreview struct {
	Title     string `json:"title"`
	WordCount int    `json:"wordCount"`
}

// ImportProgress reports per-chapter progress during an import.
type ImportProgress struct {
	Total        int
	Completed    int
	CurrentTitle string
}

type parsedChapter struct {
	title     string
	content   string
	wordCount int
}

func stripBOM(content string) string {
	return strings.TrimPrefix(content, "\uFEFF")
}

func parseChapters(content, pattern string) ([]parsedChapter, error) {
	effective := strings.TrimSpace(pattern)
	if effective == "" {
		effective = DefaultChapterPattern
	}
	re, err := regexp.Compile("(?m)" + effective)
	if err != nil {
		return nil, fmt.Errorf("Invalid regex pattern: %v", err)
	}

	var chapters []parsedChapter
	lastEnd := 0
	lastTitle := ""
	haveTitle := false

	for _, loc := range re.FindAllStringIndex(content, -1) {
		if haveTitle {
			body := strings.TrimSpace(content[lastEnd:loc[0]])
			chapters = append(chapters, parsedChapter{
				title:     lastTitle,
				content:   body,
				wordCount: CountWords(body),
			})
		}
		lastTitle = strings.TrimSpace(content[loc[0]:loc[1]])
		haveTitle = true
		lastEnd = loc[1]
	}
	if haveTitle {
		body := strings.TrimSpace(content[lastEnd:])
		chapters = append(chapters, parsedChapter{
			title:     lastTitle,
			content:   body,
			wordCount: CountWords(body),
		})
	}
	return chapters, nil
}

// PreviewImport parses filePath with the given heading pattern and reports
// the chapters that would be created.
func PreviewImport(filePath, pattern string) ([]ChapterPreview, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("Failed to read txt file: %v", err)
	}
	chapters, err := parseChapters(stripBOM(string(data)), pattern)
	if err != nil {
		return nil, err
	}
	previews := make([]ChapterPreview, 0, len(chapters))
	for _, c := range chapters {
		previews = append(previews, ChapterPreview{Title: c.title, WordCount: c.wordCount})
	}
	return previews, nil
}

// ImportTxt splits a manuscript into chapters and creates them in the
// project. progress may be nil.
func ImportTxt(root, filePath, pattern string, progress func(ImportProgress)) ([]Chapter, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("Failed to read txt file: %v", err)
	}
	chapters, err := parseChapters(stripBOM(string(data)), pattern)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("No chapters matched the pattern")
	}

	if progress != nil {
		progress(ImportProgress{Total: len(chapters)})
	}

	created := make([]Chapter, 0, len(chapters))
	for i, c := range chapters {
		meta, err := CreateChapterWithContent(root, c.title, c.content)
		if err != nil {
			return nil, err
		}
		created = append(created, *meta)
		if progress != nil {
			progress(ImportProgress{
				Total:        len(chapters),
				Completed:    i + 1,
				CurrentTitle: c.title,
			})
		}
	}
	return created, nil
}
