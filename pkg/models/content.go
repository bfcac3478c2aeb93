package models

// VocabItem is a German word with its Uzbek translation
type VocabItem struct {
	ID        int64  `json:"id" db:"id"`
	Level     Level  `json:"level" db:"level"`
	De        string `json:"de" db:"de"` // May start with an article: "der Apfel"
	Uz        string `json:"uz" db:"uz"`
	Pos       string `json:"pos" db:"pos"`
	ExampleDe string `json:"example_de" db:"example_de"`
	ExampleUz string `json:"example_uz" db:"example_uz"`
}

// GrammarTopic is a single grammar lesson
type GrammarTopic struct {
	ID      string `json:"id" db:"id"`
	Level   Level  `json:"level" db:"level"`
	Title   string `json:"title" db:"title"`
	Content string `json:"content" db:"content"`
	Example string `json:"example" db:"example"`
}
