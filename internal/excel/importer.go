// Package excel loads the vocabulary and grammar catalog from a spreadsheet
// or a CSV file.
package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Column names understood in header rows
var (
	vocabColumns   = []string{"level", "de", "uz", "pos", "example_de", "example_uz"}
	grammarColumns = []string{"id", "level", "title", "content", "example"}
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath     string // Path to the .xlsx or .csv file
	VocabSheet   string
	GrammarSheet string
	// DefaultLevel is used for rows whose level cell is empty
	DefaultLevel models.Level
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig(path string) ImportConfig {
	return ImportConfig{
		FilePath:     path,
		VocabSheet:   "vocab",
		GrammarSheet: "grammar",
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	TopicsCreated  int
	TopicsUpdated  int
	Skipped        int
	Errors         []string
}

func (r *ImportResult) fail(where string, row int, err error) {
	r.Skipped++
	r.Errors = append(r.Errors, fmt.Sprintf("%s row %d: %v", where, row, err))
}

type WordStore interface {
	Upsert(ctx context.Context, word *models.VocabItem) (bool, error)
}

type TopicStore interface {
	Upsert(ctx context.Context, topic *models.GrammarTopic) (bool, error)
}

type Importer struct {
	words  WordStore
	topics TopicStore
	log    *logger.Logger
}

func NewImporter(words WordStore, topics TopicStore, log *logger.Logger) *Importer {
	return &Importer{words: words, topics: topics, log: log}
}

// Import reads the file named in cfg. Bad rows are reported in the result
// and do not stop the import.
func (im *Importer) Import(ctx context.Context, cfg ImportConfig) (*ImportResult, error) {
	var (
		result *ImportResult
		err    error
	)
	if strings.EqualFold(filepath.Ext(cfg.FilePath), ".csv") {
		result, err = im.importCSV(ctx, cfg)
	} else {
		result, err = im.importExcel(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	im.log.Info("catalog imported",
		"file", cfg.FilePath,
		"processed", result.TotalProcessed,
		"created", result.Created,
		"updated", result.Updated,
		"topics_created", result.TopicsCreated,
		"topics_updated", result.TopicsUpdated,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (im *Importer) importExcel(ctx context.Context, cfg ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := make(map[string]bool)
	for _, name := range f.GetSheetList() {
		sheets[name] = true
	}

	result := &ImportResult{}
	found := false

	if sheets[cfg.VocabSheet] {
		found = true
		rows, err := f.GetRows(cfg.VocabSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to get rows of %s: %w", cfg.VocabSheet, err)
		}
		if err := im.importVocabRows(ctx, rows, cfg, result); err != nil {
			return nil, err
		}
	}

	if sheets[cfg.GrammarSheet] {
		found = true
		rows, err := f.GetRows(cfg.GrammarSheet)
		if err != nil {
			return nil, fmt.Errorf("failed to get rows of %s: %w", cfg.GrammarSheet, err)
		}
		if err := im.importGrammarRows(ctx, rows, cfg, result); err != nil {
			return nil, err
		}
	}

	if !found {
		return nil, fmt.Errorf("no %q or %q sheet in %s", cfg.VocabSheet, cfg.GrammarSheet, cfg.FilePath)
	}
	return result, nil
}

// importCSV reads vocabulary rows only
func (im *Importer) importCSV(ctx context.Context, cfg ImportConfig) (*ImportResult, error) {
	file, err := os.Open(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}

	result := &ImportResult{}
	if err := im.importVocabRows(ctx, rows, cfg, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (im *Importer) importVocabRows(ctx context.Context, rows [][]string, cfg ImportConfig, result *ImportResult) error {
	cols, body := splitHeader(rows, vocabColumns)
	for i, row := range body {
		rowNum := i + 1 + len(rows) - len(body)
		if blank(row) {
			continue
		}
		result.TotalProcessed++

		word, err := vocabFromRow(row, cols, cfg.DefaultLevel)
		if err != nil {
			result.fail("vocab", rowNum, err)
			continue
		}
		created, err := im.words.Upsert(ctx, word)
		if err != nil {
			return fmt.Errorf("vocab row %d: %w", rowNum, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	return nil
}

func (im *Importer) importGrammarRows(ctx context.Context, rows [][]string, cfg ImportConfig, result *ImportResult) error {
	cols, body := splitHeader(rows, grammarColumns)
	for i, row := range body {
		rowNum := i + 1 + len(rows) - len(body)
		if blank(row) {
			continue
		}
		result.TotalProcessed++

		topic, err := topicFromRow(row, cols, cfg.DefaultLevel)
		if err != nil {
			result.fail("grammar", rowNum, err)
			continue
		}
		created, err := im.topics.Upsert(ctx, topic)
		if err != nil {
			return fmt.Errorf("grammar row %d: %w", rowNum, err)
		}
		if created {
			result.TopicsCreated++
		} else {
			result.TopicsUpdated++
		}
	}
	return nil
}

func vocabFromRow(row []string, cols map[string]int, fallback models.Level) (*models.VocabItem, error) {
	level, err := levelOf(cell(row, cols, "level"), fallback)
	if err != nil {
		return nil, err
	}
	word := &models.VocabItem{
		Level:     level,
		De:        cleanWord(cell(row, cols, "de")),
		Uz:        cleanWord(cell(row, cols, "uz")),
		Pos:       strings.ToLower(cell(row, cols, "pos")),
		ExampleDe: cell(row, cols, "example_de"),
		ExampleUz: cell(row, cols, "example_uz"),
	}
	if word.De == "" {
		return nil, errors.New("word cannot be empty")
	}
	if word.Uz == "" {
		return nil, errors.New("translation cannot be empty")
	}
	return word, nil
}

func topicFromRow(row []string, cols map[string]int, fallback models.Level) (*models.GrammarTopic, error) {
	level, err := levelOf(cell(row, cols, "level"), fallback)
	if err != nil {
		return nil, err
	}
	topic := &models.GrammarTopic{
		ID:      cell(row, cols, "id"),
		Level:   level,
		Title:   cell(row, cols, "title"),
		Content: cell(row, cols, "content"),
		Example: cell(row, cols, "example"),
	}
	if topic.ID == "" {
		return nil, errors.New("topic id cannot be empty")
	}
	if topic.Title == "" {
		return nil, errors.New("topic title cannot be empty")
	}
	return topic, nil
}

func levelOf(raw string, fallback models.Level) (models.Level, error) {
	if raw == "" {
		if fallback == "" {
			return "", errors.New("level is missing")
		}
		return fallback, nil
	}
	level, ok := models.ParseLevel(raw)
	if !ok {
		return "", fmt.Errorf("unknown level %q", raw)
	}
	return level, nil
}

// splitHeader maps column names to positions. Without a recognizable
// header row the columns are taken in their default order.
func splitHeader(rows [][]string, names []string) (map[string]int, [][]string) {
	cols := make(map[string]int, len(names))
	if len(rows) > 0 {
		for i, h := range rows[0] {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, name := range names {
				if h == name {
					cols[name] = i
				}
			}
		}
		if len(cols) > 0 {
			return cols, rows[1:]
		}
	}
	for i, name := range names {
		cols[name] = i
	}
	return cols, rows
}

func cell(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cleanWord drops trailing forms in parentheses: "gehen (ging, gegangen)"
func cleanWord(word string) string {
	if i := strings.Index(word, "("); i > 0 {
		return strings.TrimSpace(word[:i])
	}
	return strings.TrimSpace(word)
}
