// Package catalog is the read-only view of the German vocabulary and
// grammar corpus used by the lesson planner.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/rng"
	"github.com/example/deutschbot/pkg/models"
	"github.com/maruel/natural"
	"golang.org/x/text/cases"
)

// WordRepository reads vocabulary rows
type WordRepository interface {
	CountByLevel(ctx context.Context, level models.Level) (int, error)
	CountByLetter(ctx context.Context, level models.Level, letter string) (int, error)
	ListByLevel(ctx context.Context, level models.Level, letter string) ([]models.VocabItem, error)
	IDsByLevel(ctx context.Context, level models.Level) ([]int64, error)
	GetByIDs(ctx context.Context, ids []int64) ([]models.VocabItem, error)
}

// TopicRepository reads grammar topics
type TopicRepository interface {
	GetByLevel(ctx context.Context, level models.Level) ([]models.GrammarTopic, error)
	GetByID(ctx context.Context, id string) (*models.GrammarTopic, error)
}

type Catalog struct {
	words  WordRepository
	topics TopicRepository
	rand   *rng.Rand
}

func New(words WordRepository, topics TopicRepository, r *rng.Rand) *Catalog {
	return &Catalog{words: words, topics: topics, rand: r}
}

// normalizeLetter returns the first rune of s if it is a letter
func normalizeLetter(s string) (string, bool) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError || !unicode.IsLetter(r) {
		return "", false
	}
	return string(r), true
}

// VocabCount returns the number of words at a level
func (c *Catalog) VocabCount(ctx context.Context, level models.Level) (int, error) {
	return c.words.CountByLevel(ctx, level)
}

// VocabCountByLetter counts words whose first German word starts with
// letter, looking past a leading der/die/das
func (c *Catalog) VocabCountByLetter(ctx context.Context, level models.Level, letter string) (int, error) {
	l, ok := normalizeLetter(letter)
	if !ok {
		return 0, nil
	}
	return c.words.CountByLetter(ctx, level, l)
}

// VocabPage returns one page of words in natural, case-insensitive order.
// An empty letter means no filter.
func (c *Catalog) VocabPage(ctx context.Context, level models.Level, offset, limit int, letter string) ([]models.VocabItem, error) {
	if limit <= 0 || offset < 0 {
		return nil, nil
	}
	if letter != "" {
		l, ok := normalizeLetter(letter)
		if !ok {
			return nil, nil
		}
		letter = l
	}

	words, err := c.words.ListByLevel(ctx, level, letter)
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabulary: %w", err)
	}
	SortNatural(words)

	if offset >= len(words) {
		return nil, nil
	}
	end := offset + limit
	if end > len(words) {
		end = len(words)
	}
	return words[offset:end], nil
}

// VocabRandom samples up to n distinct words at a level
func (c *Catalog) VocabRandom(ctx context.Context, level models.Level, n int) ([]models.VocabItem, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := c.words.IDsByLevel(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabulary ids: %w", err)
	}
	if n > len(ids) {
		n = len(ids)
	}

	picked := make([]int64, n)
	for i, p := range c.rand.Perm(len(ids))[:n] {
		picked[i] = ids[p]
	}

	words, err := c.VocabByIDs(ctx, picked)
	if err != nil {
		return nil, err
	}
	return orderByIDs(words, picked), nil
}

// VocabByIDs returns the words that exist among ids, in no particular order
func (c *Catalog) VocabByIDs(ctx context.Context, ids []int64) ([]models.VocabItem, error) {
	words, err := c.words.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get vocabulary: %w", err)
	}
	return words, nil
}

// GrammarTopics returns the topics of a level ordered by id
func (c *Catalog) GrammarTopics(ctx context.Context, level models.Level) ([]models.GrammarTopic, error) {
	topics, err := c.topics.GetByLevel(ctx, level)
	if err != nil {
		return nil, fmt.Errorf("failed to get grammar topics: %w", err)
	}
	return topics, nil
}

// GrammarByID returns a topic or apperr.ErrNotFound
func (c *Catalog) GrammarByID(ctx context.Context, id string) (*models.GrammarTopic, error) {
	topic, err := c.topics.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get grammar topic: %w", err)
	}
	if topic == nil {
		return nil, fmt.Errorf("grammar topic %q: %w", id, apperr.ErrNotFound)
	}
	return topic, nil
}

func orderByIDs(words []models.VocabItem, ids []int64) []models.VocabItem {
	pos := make(map[int64]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	sort.Slice(words, func(i, j int) bool { return pos[words[i].ID] < pos[words[j].ID] })
	return words
}

// SortNatural orders words by their German form, ignoring case and
// comparing digit runs by value
func SortNatural(words []models.VocabItem) {
	fold := cases.Fold()
	keys := make(map[int64]string, len(words))
	for _, w := range words {
		keys[w.ID] = fold.String(w.De)
	}
	sort.SliceStable(words, func(i, j int) bool {
		return natural.Less(keys[words[i].ID], keys[words[j].ID])
	})
}
