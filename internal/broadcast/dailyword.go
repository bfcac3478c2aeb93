package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/example/deutschbot/internal/clock"
	"github.com/example/deutschbot/internal/rng"
	"github.com/example/deutschbot/pkg/logger"
	"github.com/example/deutschbot/pkg/models"
)

// Payload is the message carried by a job
type Payload struct {
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// DecodePayload reads a job payload written by the enqueuer
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}

// WordOfDay is one entry of the daily word rotation
type WordOfDay struct {
	De        string
	Uz        string
	ExampleDe string
	ExampleUz string
}

var dailyWords = []WordOfDay{
	{"der Apfel", "olma", "Ich esse jeden Tag einen Apfel.", "Men har kuni bitta olma yeyman."},
	{"das Buch", "kitob", "Das Buch ist sehr spannend.", "Kitob juda qiziqarli."},
	{"die Freundschaft", "do'stlik", "Freundschaft ist wichtig.", "Do'stlik muhim."},
	{"lernen", "o'rganmoq", "Wir lernen jeden Abend Deutsch.", "Biz har kech nemis tilini o'rganamiz."},
	{"der Bahnhof", "vokzal", "Der Bahnhof ist nicht weit.", "Vokzal uzoq emas."},
	{"die Reise", "sayohat", "Die Reise nach Berlin war toll.", "Berlinga sayohat ajoyib edi."},
	{"gemütlich", "shinam", "Das Café ist sehr gemütlich.", "Kafe juda shinam."},
	{"die Arbeit", "ish", "Die Arbeit beginnt um acht.", "Ish soat sakkizda boshlanadi."},
	{"das Wetter", "ob-havo", "Das Wetter ist heute schön.", "Bugun ob-havo yaxshi."},
	{"sprechen", "gapirmoq", "Sprechen Sie langsam, bitte.", "Iltimos, sekin gapiring."},
	{"die Wohnung", "kvartira", "Die Wohnung hat drei Zimmer.", "Kvartirada uchta xona bor."},
	{"der Termin", "uchrashuv vaqti", "Ich habe morgen einen Termin.", "Ertaga uchrashuvim bor."},
	{"die Geduld", "sabr", "Geduld ist der Schlüssel.", "Sabr kalitdir."},
	{"verstehen", "tushunmoq", "Ich verstehe die Frage nicht.", "Men savolni tushunmayapman."},
	{"das Ziel", "maqsad", "Mein Ziel ist B1.", "Mening maqsadim B1."},
	{"die Erfahrung", "tajriba", "Sie hat viel Erfahrung.", "Uning tajribasi ko'p."},
	{"pünktlich", "o'z vaqtida", "Der Zug ist pünktlich.", "Poyezd o'z vaqtida."},
	{"der Schlüssel", "kalit", "Wo ist mein Schlüssel?", "Kalitim qayerda?"},
	{"die Gesundheit", "salomatlik", "Gesundheit ist das Wichtigste.", "Salomatlik eng muhimi."},
	{"vergessen", "unutmoq", "Vergiss die Hausaufgaben nicht!", "Uy vazifasini unutma!"},
	{"das Gespräch", "suhbat", "Das Gespräch war sehr nett.", "Suhbat juda yoqimli edi."},
	{"die Zukunft", "kelajak", "Die Zukunft gehört dir.", "Kelajak seniki."},
	{"ehrlich", "halol", "Er ist immer ehrlich.", "U doim halol."},
	{"der Fortschritt", "taraqqiyot", "Du machst große Fortschritte.", "Sen katta yutuqlarga erishyapsan."},
	{"die Bewerbung", "ariza", "Ich schreibe eine Bewerbung.", "Men ariza yozyapman."},
	{"entscheiden", "qaror qilmoq", "Wir entscheiden morgen.", "Biz ertaga qaror qilamiz."},
	{"das Abenteuer", "sarguzasht", "Das Leben ist ein Abenteuer.", "Hayot bu sarguzasht."},
	{"die Sprache", "til", "Deutsch ist eine schöne Sprache.", "Nemis tili chiroyli til."},
	{"mutig", "jasur", "Sei mutig und sprich!", "Jasur bo'l va gapir!"},
	{"der Erfolg", "muvaffaqiyat", "Viel Erfolg bei der Prüfung!", "Imtihonda omad!"},
	{"die Hoffnung", "umid", "Die Hoffnung stirbt zuletzt.", "Umid eng oxirida o'ladi."},
}

var quotes = []string{
	"Übung macht den Meister. (Mashq ustoz qiladi.)",
	"Aller Anfang ist schwer. (Har qanday boshlanish qiyin.)",
	"Wer rastet, der rostet. (Dam olgan zanglaydi.)",
	"Langsam, aber sicher. (Sekin, lekin ishonchli.)",
	"Morgenstund hat Gold im Mund. (Erta turgan oltin topadi.)",
	"Kleine Schritte führen auch zum Ziel. (Kichik qadamlar ham maqsadga olib boradi.)",
	"Wo ein Wille ist, ist auch ein Weg. (Xohish bor joyda yo'l bor.)",
}

// WordFor returns the word of the day for t, by day of year
func WordFor(t time.Time) WordOfDay {
	return dailyWords[(t.YearDay()-1)%len(dailyWords)]
}

// SlotKey names the hourly slot containing t, e.g. "2026-02-21_09:00"
func SlotKey(t time.Time) string {
	return t.Format("2006-01-02_15") + ":00"
}

// RenderDailyWord formats the announcement as Telegram HTML
func RenderDailyWord(w WordOfDay, quote string) string {
	var b strings.Builder
	b.WriteString("🌅 <b>Kun so'zi</b>\n\n")
	fmt.Fprintf(&b, "🇩🇪 <b>%s</b>\n🇺🇿 %s\n\n", html.EscapeString(w.De), html.EscapeString(w.Uz))
	if w.ExampleDe != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n%s\n\n", html.EscapeString(w.ExampleDe), html.EscapeString(w.ExampleUz))
	}
	if quote != "" {
		fmt.Fprintf(&b, "💬 %s", html.EscapeString(quote))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Directory lists users subscribed to the daily word
type Directory interface {
	SubscribedAt(ctx context.Context, hour int) ([]int64, error)
}

// DailyWordEnqueuer fans the word of the day out to the current slot's users
type DailyWordEnqueuer struct {
	queue *Queue
	dir   Directory
	clock clock.Clock
	rand  *rng.Rand
	loc   *time.Location
	log   *logger.Logger
}

func NewDailyWordEnqueuer(queue *Queue, dir Directory, c clock.Clock, r *rng.Rand, loc *time.Location, log *logger.Logger) *DailyWordEnqueuer {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyWordEnqueuer{queue: queue, dir: dir, clock: c, rand: r, loc: loc, log: log}
}

// EnqueueCurrentSlot enqueues the daily word for users of the current hour.
// Running it twice in one slot adds nothing.
func (e *DailyWordEnqueuer) EnqueueCurrentSlot(ctx context.Context) (int, error) {
	now := e.clock.Now().In(e.loc)
	slot := SlotKey(now)

	users, err := e.dir.SubscribedAt(ctx, now.Hour())
	if err != nil {
		return 0, fmt.Errorf("failed to list subscribers: %w", err)
	}
	if len(users) == 0 {
		e.log.Debug("no daily word subscribers", "slot", slot)
		return 0, nil
	}

	quote := quotes[e.rand.Intn(len(quotes))]
	payload, err := json.Marshal(Payload{
		Text:      RenderDailyWord(WordFor(now), quote),
		ParseMode: "HTML",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode payload: %w", err)
	}
	return e.queue.Enqueue(ctx, users, models.JobKindDailyWord, payload, slot)
}
