package lesson

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/deutschbot/internal/apperr"
	"github.com/example/deutschbot/internal/rng"
	"github.com/example/deutschbot/pkg/models"
	"golang.org/x/text/cases"
)

const (
	distractorCount = 3
	distractorPool  = 15
)

// QuizBuilder creates multiple choice questions: German prompt, Uzbek options
type QuizBuilder struct {
	catalog Catalog
	rand    *rng.Rand
}

func NewQuizBuilder(catalog Catalog, r *rng.Rand) *QuizBuilder {
	return &QuizBuilder{catalog: catalog, rand: r}
}

// Question builds question index for itemID. It returns apperr.ErrNotFound
// when the item is gone from the catalog.
func (b *QuizBuilder) Question(ctx context.Context, level models.Level, index int, itemID int64) (*models.QuizQuestion, error) {
	found, err := b.catalog.VocabByIDs(ctx, []int64{itemID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("quiz item %d: %w", itemID, apperr.ErrNotFound)
	}
	target := found[0]

	pool, err := b.catalog.VocabRandom(ctx, level, distractorPool)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}

	options := distractors(target, pool, distractorCount)
	options = append(options, target.Uz)
	correctIndex := len(options) - 1

	b.rand.Shuffle(len(options), func(i, j int) {
		if i == correctIndex {
			correctIndex = j
		} else if j == correctIndex {
			correctIndex = i
		}
		options[i], options[j] = options[j], options[i]
	})

	return &models.QuizQuestion{
		Index:        index,
		ItemID:       target.ID,
		Prompt:       target.De,
		Options:      options,
		CorrectIndex: correctIndex,
	}, nil
}

// distractors picks up to n wrong translations, skipping the target and
// any translation already offered
func distractors(target models.VocabItem, pool []models.VocabItem, n int) []string {
	fold := cases.Fold()
	used := map[string]bool{fold.String(strings.TrimSpace(target.Uz)): true}

	options := make([]string, 0, n+1)
	for _, w := range pool {
		if len(options) >= n {
			break
		}
		key := fold.String(strings.TrimSpace(w.Uz))
		if w.ID == target.ID || key == "" || used[key] {
			continue
		}
		used[key] = true
		options = append(options, w.Uz)
	}
	return options
}
