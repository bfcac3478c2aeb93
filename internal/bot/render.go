package bot

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"

	"github.com/example/deutschbot/internal/lesson"
	"github.com/example/deutschbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// View is a rendered message: HTML text plus optional inline buttons
type View struct {
	Text    string
	Buttons [][]MenuButton
}

// Markup returns the inline keyboard of the view, or nil
func (v View) Markup() *tgbotapi.InlineKeyboardMarkup {
	if len(v.Buttons) == 0 {
		return nil
	}
	kb := createKeyboard(v.Buttons)
	return &kb
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

var stepTitles = map[int]string{
	models.StepWarmup:     "Qizdirish",
	models.StepVocabulary: "Yangi so'zlar",
	models.StepGrammar:    "Grammatika",
	models.StepQuiz:       "Test",
	models.StepProduction: "Amaliyot",
	models.StepSummary:    "Yakun",
}

var warningTexts = map[string]string{
	lesson.WarnProgressNotSaved: "⚠️ Natija saqlanmadi, keyinroq yana urinib ko'ring.",
	lesson.WarnCoverageNotSaved: "⚠️ Mavzu statistikasi yangilanmadi.",
}

var (
	nextButton   = MenuButton{Text: "Davom etish ▶️", CallbackData: cbLessonNext}
	cancelButton = MenuButton{Text: "❌ Bekor qilish", CallbackData: cbLessonCancel}
	menuButton   = MenuButton{Text: "🏠 Menyu", CallbackData: cbMenu}
)

func esc(s string) string {
	return html.EscapeString(s)
}

// MainMenu is shown after /start and on "menu"
func MainMenu(level models.Level) View {
	return View{
		Text: "Asosiy menyu. Nima qilamiz?",
		Buttons: [][]MenuButton{
			{{Text: "📚 Bugungi dars", CallbackData: cbLessonBegin}},
			{{Text: "📖 Lug'at", CallbackData: VocabData(level, "", 0)}},
			{{Text: "📊 Progress", CallbackData: cbProgress}, {Text: "🎚 Daraja", CallbackData: cbLevelMenu}},
		},
	}
}

// Welcome greets a learner on /start
func Welcome(p *models.UserProfile) View {
	name := p.FirstName
	if name == "" {
		name = "do'stim"
	}
	v := MainMenu(p.CurrentLevel)
	v.Text = fmt.Sprintf("👋 Salom, %s!\n\n"+
		"Men nemis tilini o'rganishda yordam beraman.\n"+
		"Har kuni qisqa dars: yangi so'zlar, grammatika, test va amaliyot.\n\n"+
		"Sizning darajangiz: <b>%s</b>", esc(name), p.CurrentLevel)
	return v
}

// Help lists the commands
func Help() string {
	return "📖 Buyruqlar\n\n" +
		"/lesson - bugungi dars\n" +
		"/progress - natijalar\n" +
		"/vocab [harf] - lug'at\n" +
		"/level [A1-C1] - darajani o'zgartirish\n" +
		"/dailyword on|off|soat - kun so'zi\n" +
		"/cancel - darsni bekor qilish"
}

// LevelMenu lets the learner pick a level
func LevelMenu(current models.Level) View {
	var row []MenuButton
	for _, l := range models.Levels {
		text := string(l)
		if l == current {
			text = "✅ " + text
		}
		row = append(row, MenuButton{Text: text, CallbackData: cbLevelPrefix + string(l)})
	}
	return View{
		Text:    fmt.Sprintf("Hozirgi daraja: <b>%s</b>\nYangi darajani tanlang:", current),
		Buttons: [][]MenuButton{row, {menuButton}},
	}
}

// StepContent is the catalog data a step needs
type StepContent struct {
	Words []models.VocabItem
	Topic *models.GrammarTopic
}

// RenderStep shows the current step of an in-progress lesson
func RenderStep(sess *models.LessonSession, content StepContent) View {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d/6 · %s</b> (%s)\n\n", sess.Step, stepTitles[sess.Step], sess.Plan.Level)

	buttons := [][]MenuButton{{nextButton}, {cancelButton}}
	switch sess.Step {
	case models.StepWarmup:
		fmt.Fprintf(&b, "☀️ Bugun %d ta yangi so'z, bitta grammatika mavzusi va %d ta savol.\nTayyormisiz?",
			len(sess.Plan.VocabIDs), len(sess.Plan.PracticeQuizIDs))
		buttons[0][0].Text = "Boshladik ▶️"
	case models.StepVocabulary:
		writeWords(&b, content.Words, true)
	case models.StepGrammar:
		if content.Topic == nil {
			b.WriteString("Bugun grammatika mavzusi yo'q.")
		} else {
			fmt.Fprintf(&b, "📘 <b>%s</b>\n\n%s", esc(content.Topic.Title), esc(content.Topic.Content))
			if content.Topic.Example != "" {
				fmt.Fprintf(&b, "\n\n<i>%s</i>", esc(content.Topic.Example))
			}
		}
	case models.StepQuiz:
		if sess.Question != nil {
			return RenderQuestion(sess.Question, len(sess.Plan.PracticeQuizIDs), sess.Plan.Level)
		}
		b.WriteString("Savol topilmadi.")
	case models.StepProduction:
		if sess.Plan.ProductionMode == models.ProductionSpeaking {
			b.WriteString("🗣 Quyidagi so'zlar bilan 3 ta gapni ovoz chiqarib ayting:\n\n")
		} else {
			b.WriteString("✍️ Quyidagi so'zlar bilan 3 ta gap yozing:\n\n")
		}
		writeWords(&b, content.Words, false)
		buttons[0][0].Text = "Bajardim ✅"
	case models.StepSummary:
		fmt.Fprintf(&b, "🏁 Test natijasi: <b>%d/%d</b> to'g'ri.\nDarsni yakunlash uchun tugmani bosing.",
			sess.Results.QuizCorrect, sess.Results.QuizTotal)
		buttons = [][]MenuButton{{{Text: "Darsni yakunlash 🎉", CallbackData: cbLessonFinish}}}
	}
	return View{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}
}

func writeWords(b *strings.Builder, words []models.VocabItem, examples bool) {
	if len(words) == 0 {
		b.WriteString("So'zlar topilmadi.")
		return
	}
	for _, w := range words {
		fmt.Fprintf(b, "• <b>%s</b> — %s\n", esc(w.De), esc(w.Uz))
		if examples && w.ExampleDe != "" {
			fmt.Fprintf(b, "   <i>%s</i>\n", esc(w.ExampleDe))
		}
	}
}

// RenderQuestion shows a quiz question with one button per option
func RenderQuestion(q *models.QuizQuestion, total int, level models.Level) View {
	text := fmt.Sprintf("<b>4/6 · %s</b> (%s)\n\n❓ Savol %d/%d\n🇩🇪 <b>%s</b> so'zining tarjimasi qaysi?",
		stepTitles[models.StepQuiz], level, q.Index+1, total, esc(q.Prompt))
	var buttons [][]MenuButton
	for i, opt := range q.Options {
		buttons = append(buttons, []MenuButton{{Text: opt, CallbackData: AnswerData(q.Index, i)}})
	}
	buttons = append(buttons, []MenuButton{cancelButton})
	return View{Text: text, Buttons: buttons}
}

// RenderAnswer is the one-line feedback for an answer
func RenderAnswer(a *lesson.Answer) string {
	if a.Correct {
		return "✅ To'g'ri!"
	}
	return "❌ Noto'g'ri. To'g'ri javob: <b>" + esc(a.CorrectOption) + "</b>"
}

// RenderResult turns an engine result into the message to show
func RenderResult(res *lesson.Result, content StepContent) View {
	var v View
	switch {
	case res.Cancelled:
		v = View{Text: "Dars bekor qilindi. Istalgan vaqtda /lesson bilan qayta boshlang.", Buttons: [][]MenuButton{{menuButton}}}
	case res.Finished:
		v = RenderFinished(res.Session, res.Streak)
	case res.AlreadyFinished:
		v = View{Text: "✅ Bugungi dars allaqachon yakunlangan. Ertaga yangi dars!", Buttons: [][]MenuButton{
			{{Text: "📊 Progress", CallbackData: cbProgress}},
			{menuButton},
		}}
	default:
		v = RenderStep(res.Session, content)
	}

	var prefix []string
	if res.Resumed {
		prefix = append(prefix, "🔄 Darsni davom ettiramiz.")
	}
	if res.Answer != nil {
		prefix = append(prefix, RenderAnswer(res.Answer))
	}
	if len(prefix) > 0 {
		v.Text = strings.Join(prefix, "\n") + "\n\n" + v.Text
	}
	for _, w := range res.Warnings {
		if text, ok := warningTexts[w]; ok {
			v.Text += "\n\n" + text
		}
	}
	return v
}

// RenderFinished congratulates on a completed lesson
func RenderFinished(sess *models.LessonSession, streak *models.Streak) View {
	var b strings.Builder
	b.WriteString("🎉 <b>Dars yakunlandi!</b>\n\n")
	if sess != nil {
		fmt.Fprintf(&b, "Test: %d/%d to'g'ri\n", sess.Results.QuizCorrect, sess.Results.QuizTotal)
	}
	if streak != nil {
		fmt.Fprintf(&b, "🔥 Ketma-ketlik: %d kun (rekord: %d)", streak.CurrentStreak, streak.BestStreak)
	}
	return View{
		Text:    strings.TrimRight(b.String(), "\n"),
		Buttons: [][]MenuButton{{{Text: "📊 Progress", CallbackData: cbProgress}}, {menuButton}},
	}
}

var todayStatusTexts = map[models.SessionStatus]string{
	models.SessionIdle:       "boshlanmagan",
	models.SessionInProgress: "jarayonda",
	models.SessionFinished:   "yakunlangan ✅",
}

// RenderDashboard shows the learner's progress
func RenderDashboard(d *lesson.Dashboard) View {
	var b strings.Builder
	b.WriteString("📊 <b>Sizning natijalaringiz</b>\n\n")
	fmt.Fprintf(&b, "Daraja: <b>%s</b>\n", d.Level)
	fmt.Fprintf(&b, "Bugungi dars: %s\n", todayStatusTexts[d.TodayStatus])
	fmt.Fprintf(&b, "🔥 Ketma-ketlik: %d kun (rekord: %d)\n", d.CurrentStreak, d.BestStreak)
	fmt.Fprintf(&b, "Yakunlangan darslar: %d\n", d.CompletedLessons)
	fmt.Fprintf(&b, "Takrorlash kerak: %d ta so'z\n", d.Due)
	if len(d.DueWords) > 0 {
		words := make([]string, 0, len(d.DueWords))
		for _, w := range d.DueWords {
			words = append(words, esc(w.De))
		}
		fmt.Fprintf(&b, "Navbatda: %s\n", strings.Join(words, ", "))
	}

	if len(d.Boxes) > 0 {
		boxes := make([]int, 0, len(d.Boxes))
		for box := range d.Boxes {
			boxes = append(boxes, box)
		}
		sort.Ints(boxes)
		b.WriteString("\nQutilar: ")
		parts := make([]string, 0, len(boxes))
		for _, box := range boxes {
			parts = append(parts, fmt.Sprintf("%d: %d", box, d.Boxes[box]))
		}
		b.WriteString(strings.Join(parts, " · "))
		b.WriteString("\n")
	}

	if len(d.WeakTopics) > 0 {
		b.WriteString("\n⚠️ Qiyin mavzular:\n")
		for _, t := range d.WeakTopics {
			fmt.Fprintf(&b, "• %s (%.1f)\n", esc(t.TopicID), t.Score)
		}
	}
	return View{Text: strings.TrimRight(b.String(), "\n"), Buttons: [][]MenuButton{{menuButton}}}
}

// RenderVocabPage shows one page of the vocabulary list
func RenderVocabPage(level models.Level, letter string, page, pageSize, total int, words []models.VocabItem) View {
	var b strings.Builder
	pages := (total + pageSize - 1) / pageSize
	if pages == 0 {
		pages = 1
	}
	fmt.Fprintf(&b, "📖 <b>Lug'at %s</b>", level)
	if letter != "" {
		fmt.Fprintf(&b, " · %s", esc(strings.ToUpper(letter)))
	}
	fmt.Fprintf(&b, " (%d/%d)\n\n", page+1, pages)
	if len(words) == 0 {
		b.WriteString("Hech narsa topilmadi.")
	}
	for _, w := range words {
		fmt.Fprintf(&b, "• <b>%s</b> — %s\n", esc(w.De), esc(w.Uz))
	}

	var nav []MenuButton
	if page > 0 {
		nav = append(nav, MenuButton{Text: "⬅️", CallbackData: VocabData(level, letter, page-1)})
	}
	if page+1 < pages {
		nav = append(nav, MenuButton{Text: "➡️", CallbackData: VocabData(level, letter, page+1)})
	}
	buttons := [][]MenuButton{}
	if len(nav) > 0 {
		buttons = append(buttons, nav)
	}
	buttons = append(buttons, []MenuButton{menuButton})
	return View{Text: strings.TrimRight(b.String(), "\n"), Buttons: buttons}
}

// RenderQueueCounts formats broadcast queue counters for the admin
func RenderQueueCounts(counts map[string]int) string {
	statuses := []string{models.JobPending, models.JobProcessing, models.JobSent, models.JobFailed}
	var b strings.Builder
	b.WriteString("📬 <b>Navbat</b>\n")
	for _, s := range statuses {
		b.WriteString(s + ": " + strconv.Itoa(counts[s]) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
