package project

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/JinchengGao-Infty/Creator-Studio/security"
)

type Chapter struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Order     int    `json:"order"`
	Created   int64  `json:"created"`
	Updated   int64  `json:"updated"`
	WordCount int    `json:"wordCount"`
}

type Index struct {
	Chapters []Chapter `json:"chapters"`
	NextID   int       `json:"nextId"`
}

// Info is the payload returned for the get_chapter_info tool.
type Info struct {
	ChapterID string `json:"chapterId"`
	Title     string `json:"title"`
	Path      string `json:"path"`
	WordCount int    `json:"wordCount"`
	UpdatedAt int64  `json:"updatedAt"`
}

// CountWords counts non-whitespace runes; CJK prose has no word boundaries
// so character count is the working definition.
func CountWords(content string) int {
	n := 0
	for _, r := range content {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func validateChapterID(id string) error {
	if !strings.HasPrefix(id, "chapter_") {
		return fmt.Errorf("Invalid chapter_id (expected 'chapter_XXX')")
	}
	suffix := id[len("chapter_"):]
	if suffix == "" || !allDigits(suffix) {
		return fmt.Errorf("Invalid chapter_id (expected digits after 'chapter_')")
	}
	return nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeID accepts the canonical "chapter_NNN" form or bare digits
// ("3" / "03" / "003") and returns the zero-padded canonical id.
func NormalizeID(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("chapterId is empty")
	}
	if strings.HasPrefix(v, "chapter_") {
		suffix := v[len("chapter_"):]
		if suffix == "" || !allDigits(suffix) {
			return "", fmt.Errorf("Invalid chapterId (expected 'chapter_XXX')")
		}
		return v, nil
	}
	if allDigits(v) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return "", fmt.Errorf("Invalid chapterId (expected digits)")
		}
		return fmt.Sprintf("chapter_%03d", n), nil
	}
	return "", fmt.Errorf("Invalid chapterId")
}

func chapterRelPath(id string) string {
	return "chapters/" + id + ".txt"
}

// ReadIndex loads chapters/index.json.
func ReadIndex(root string) (*Index, error) {
	data, err := os.ReadFile(indexPath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to read chapters/index.json: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse chapters/index.json: %w", err)
	}
	return &idx, nil
}

// WriteIndex persists chapters/index.json through the backup layer.
func WriteIndex(root string, idx *Index) error {
	return writeJSONProtected(root, "chapters/index.json", idx)
}

// ListChapters returns all chapters sorted by order.
func ListChapters(root string) ([]Chapter, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(idx.Chapters, func(i, j int) bool {
		return idx.Chapters[i].Order < idx.Chapters[j].Order
	})
	return idx.Chapters, nil
}

// CreateChapter appends a new empty chapter to the index and creates its
// backing file.
func CreateChapter(root, title string) (*Chapter, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("chapter_%03d", idx.NextID)
	for _, c := range idx.Chapters {
		if c.ID == id {
			return nil, fmt.Errorf("Chapter id already exists in index.json")
		}
	}

	abs, err := security.ValidatePath(root, chapterRelPath(id))
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("Chapter file already exists")
		}
		return nil, fmt.Errorf("failed to create chapter file: %w", err)
	}
	f.Close()

	order := 0
	for _, c := range idx.Chapters {
		if c.Order > order {
			order = c.Order
		}
	}

	now := nowUnix()
	meta := Chapter{
		ID:      id,
		Title:   title,
		Order:   order + 1,
		Created: now,
		Updated: now,
	}
	idx.Chapters = append(idx.Chapters, meta)
	idx.NextID++
	if err := WriteIndex(root, idx); err != nil {
		return nil, err
	}
	return &meta, nil
}

// ChapterContent returns the raw text of a chapter file.
func ChapterContent(root, chapterID string) (string, error) {
	if err := EnsureProject(root); err != nil {
		return "", err
	}
	if err := validateChapterID(chapterID); err != nil {
		return "", err
	}
	abs, err := security.ValidatePath(root, chapterRelPath(chapterID))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("Chapter file does not exist")
		}
		return "", fmt.Errorf("failed to read chapter content: %w", err)
	}
	return string(data), nil
}

// SaveChapterContent replaces a chapter's text and refreshes its word count
// and updated timestamp in the index.
func SaveChapterContent(root, chapterID, content string) (*Chapter, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	if err := validateChapterID(chapterID); err != nil {
		return nil, err
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return nil, err
	}
	meta := findChapter(idx, chapterID)
	if meta == nil {
		return nil, fmt.Errorf("Chapter not found")
	}

	abs, err := security.ValidatePath(root, chapterRelPath(chapterID))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("Chapter file does not exist")
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write chapter content: %w", err)
	}

	meta.Updated = nowUnix()
	meta.WordCount = CountWords(content)
	updated := *meta
	if err := WriteIndex(root, idx); err != nil {
		return nil, err
	}
	return &updated, nil
}

// CreateChapterWithContent is the import path: create then fill.
func CreateChapterWithContent(root, title, content string) (*Chapter, error) {
	created, err := CreateChapter(root, title)
	if err != nil {
		return nil, err
	}
	return SaveChapterContent(root, created.ID, content)
}

// RenameChapter updates a chapter's title.
func RenameChapter(root, chapterID, newTitle string) (*Chapter, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	if err := validateChapterID(chapterID); err != nil {
		return nil, err
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return nil, err
	}
	meta := findChapter(idx, chapterID)
	if meta == nil {
		return nil, fmt.Errorf("Chapter not found")
	}
	meta.Title = newTitle
	meta.Updated = nowUnix()
	updated := *meta
	if err := WriteIndex(root, idx); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteChapter removes a chapter file and its index entry, then renumbers
// the remaining chapters.
func DeleteChapter(root, chapterID string) error {
	if err := EnsureProject(root); err != nil {
		return err
	}
	if err := validateChapterID(chapterID); err != nil {
		return err
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return err
	}

	kept := idx.Chapters[:0]
	found := false
	for _, c := range idx.Chapters {
		if c.ID == chapterID {
			found = true
			continue
		}
		kept = append(kept, c)
	}
	if !found {
		return fmt.Errorf("Chapter not found")
	}
	idx.Chapters = kept

	abs, err := security.ValidatePath(root, chapterRelPath(chapterID))
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete chapter file: %w", err)
	}

	sort.SliceStable(idx.Chapters, func(i, j int) bool {
		return idx.Chapters[i].Order < idx.Chapters[j].Order
	})
	now := nowUnix()
	for i := range idx.Chapters {
		if idx.Chapters[i].Order != i+1 {
			idx.Chapters[i].Order = i + 1
			idx.Chapters[i].Updated = now
		}
	}
	return WriteIndex(root, idx)
}

// ReorderChapters applies a full permutation of chapter ids as the new order.
func ReorderChapters(root string, chapterIDs []string) ([]Chapter, error) {
	if err := EnsureProject(root); err != nil {
		return nil, err
	}
	if len(chapterIDs) == 0 {
		return nil, fmt.Errorf("chapter_ids is empty")
	}
	for _, id := range chapterIDs {
		if err := validateChapterID(id); err != nil {
			return nil, err
		}
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return nil, err
	}
	if len(chapterIDs) != len(idx.Chapters) {
		return nil, fmt.Errorf("chapter_ids must include all chapters")
	}

	seen := make(map[string]bool, len(chapterIDs))
	for _, id := range chapterIDs {
		if seen[id] {
			return nil, fmt.Errorf("chapter_ids contains duplicates")
		}
		seen[id] = true
	}

	byID := make(map[string]Chapter, len(idx.Chapters))
	for _, c := range idx.Chapters {
		byID[c.ID] = c
	}

	now := nowUnix()
	reordered := make([]Chapter, 0, len(chapterIDs))
	for i, id := range chapterIDs {
		meta, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("Unknown chapter id: %s", id)
		}
		delete(byID, id)
		if meta.Order != i+1 {
			meta.Order = i + 1
			meta.Updated = now
		}
		reordered = append(reordered, meta)
	}

	idx.Chapters = reordered
	if err := WriteIndex(root, idx); err != nil {
		return nil, err
	}
	return reordered, nil
}

// LookupInfo resolves a chapter id (normalized) into the tool-facing info
// record.
func LookupInfo(root, chapterID string) (*Info, error) {
	id, err := NormalizeID(chapterID)
	if err != nil {
		return nil, err
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return nil, err
	}
	meta := findChapter(idx, id)
	if meta == nil {
		return nil, fmt.Errorf("Chapter not found")
	}
	return &Info{
		ChapterID: meta.ID,
		Title:     meta.Title,
		Path:      chapterRelPath(meta.ID),
		WordCount: meta.WordCount,
		UpdatedAt: meta.Updated,
	}, nil
}

// SyncFromFile refreshes a chapter's word count and updated timestamp from
// its file content. relPath must look like chapters/chapter_<digits>.txt;
// anything else, or a chapter absent from the index, is silently ignored so
// plain file appends outside the chapter convention stay cheap.
func SyncFromFile(root, relPath string) error {
	if !strings.HasPrefix(relPath, "chapters/") || !strings.HasSuffix(relPath, ".txt") {
		return nil
	}
	filename := relPath[strings.LastIndex(relPath, "/")+1:]
	id := strings.TrimSuffix(filename, ".txt")
	if !strings.HasPrefix(id, "chapter_") || !allDigits(id[len("chapter_"):]) {
		return nil
	}

	if _, err := os.Stat(indexPath(root)); err != nil {
		return nil
	}
	idx, err := ReadIndex(root)
	if err != nil {
		return err
	}
	meta := findChapter(idx, id)
	if meta == nil {
		return nil
	}

	abs, err := security.ValidatePath(root, relPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read chapter content: %w", err)
	}

	meta.Updated = nowUnix()
	meta.WordCount = CountWords(string(data))
	return WriteIndex(root, idx)
}

func findChapter(idx *Index, id string) *Chapter {
	for i := range idx.Chapters {
		if idx.Chapters[i].ID == id {
			return &idx.Chapters[i]
		}
	}
	return nil
}
