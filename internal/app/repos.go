package app

import (
	"github.com/example/deutschbot/internal/database"
)

// Repos holds one repository per table group
type Repos struct {
	Users      *database.UserRepository
	Words      *database.WordRepository
	Topics     *database.TopicRepository
	Mistakes   *database.MistakeRepository
	Repetition *database.RepetitionRepository
	Plans      *database.PlanRepository
	Sessions   *database.SessionRepository
	Statistics *database.StatisticsRepository
	Broadcast  *database.BroadcastRepository
}

func wireRepos(db *database.DB) Repos {
	return Repos{
		Users:      database.NewUserRepository(db),
		Words:      database.NewWordRepository(db),
		Topics:     database.NewTopicRepository(db),
		Mistakes:   database.NewMistakeRepository(db),
		Repetition: database.NewRepetitionRepository(db),
		Plans:      database.NewPlanRepository(db),
		Sessions:   database.NewSessionRepository(db),
		Statistics: database.NewStatisticsRepository(db),
		Broadcast:  database.NewBroadcastRepository(db),
	}
}
