package bot

import (
	"strconv"
	"strings"

	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/pkg/models"
)

// Callback data of inline buttons
const (
	cbLessonBegin   = "lsn:begin"
	cbLessonNext    = "lsn:next"
	cbLessonFinish  = "lsn:fin"
	cbLessonCancel  = "lsn:cancel"
	cbLessonAnswer  = "lsn:ans:"
	cbVocabPrefix   = "voc:"
	cbLevelPrefix   = "lvl:"
	cbLevelMenu     = "lvl"
	cbProgress      = "prog"
	cbMenu          = "menu"
	noLetterMarker  = "-"
	callbackMaxSize = 64
)

// AnswerData encodes the choice of option for quiz question index
func AnswerData(index, option int) string {
	return cbLessonAnswer + strconv.Itoa(index) + ":" + strconv.Itoa(option)
}

// ParseLessonCallback maps lesson button data to an engine event
func ParseLessonCallback(data string, userID int64) (lesson.Event, bool) {
	ev := lesson.Event{UserID: userID}
	switch data {
	case cbLessonBegin:
		ev.Kind = lesson.EventBegin
	case cbLessonNext:
		ev.Kind = lesson.EventNext
	case cbLessonFinish:
		ev.Kind = lesson.EventFinish
	case cbLessonCancel:
		ev.Kind = lesson.EventCancel
	default:
		rest, ok := strings.CutPrefix(data, cbLessonAnswer)
		if !ok {
			return lesson.Event{}, false
		}
		idx, opt, ok := strings.Cut(rest, ":")
		if !ok {
			return lesson.Event{}, false
		}
		index, err1 := strconv.Atoi(idx)
		option, err2 := strconv.Atoi(opt)
		if err1 != nil || err2 != nil || index < 0 || option < 0 {
			return lesson.Event{}, false
		}
		ev.Kind = lesson.EventAnswer
		ev.QuizIndex = index
		ev.Option = option
	}
	return ev, true
}

// VocabData encodes a vocabulary page request
func VocabData(level models.Level, letter string, page int) string {
	if letter == "" {
		letter = noLetterMarker
	}
	data := cbVocabPrefix + string(level) + ":" + letter + ":" + strconv.Itoa(page)
	if len(data) > callbackMaxSize {
		return cbVocabPrefix + string(level) + ":" + noLetterMarker + ":0"
	}
	return data
}

// ParseVocabData decodes VocabData output
func ParseVocabData(data string) (level models.Level, letter string, page int, ok bool) {
	rest, found := strings.CutPrefix(data, cbVocabPrefix)
	if !found {
		return "", "", 0, false
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return "", "", 0, false
	}
	level, ok = models.ParseLevel(parts[0])
	if !ok {
		return "", "", 0, false
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil || page < 0 {
		return "", "", 0, false
	}
	letter = parts[1]
	if letter == noLetterMarker {
		letter = ""
	}
	return level, letter, page, true
}
