package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sandevgo/brain/pkg/textnorm"
)

// Details are the scheduling fields found in a message.
type Details struct {
	Title string
	// Date is midnight of the day in the location of the reference time.
	Date    *time.Time
	HasTime bool
	Hour    int
	Minute  int
}

// At combines Date and the clock time. Without a date the reference day is
// used.
func (d Details) At(now time.Time) time.Time {
	day := now
	if d.Date != nil {
		day = *d.Date
	}
	return time.Date(day.Year(), day.Month(), day.Day(), d.Hour, d.Minute, 0, 0, day.Location())
}

var (
	isoDateRe  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dotDateRe  = regexp.MustCompile(`\b(\d{1,2})\.\s?(\d{1,2})\.(?:\s?(\d{4})\b)?`)
	relDayRe   = regexp.MustCompile(`\b(day after tomorrow|pozitri|tomorrow|zitra|today|tonight|dnes|dneska|dnesni|vecer)\b`)
	weekdayRe  = regexp.MustCompile(`\b(?:next\s+|pristi\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday|pondeli|utery|streda|stredu|ctvrtek|patek|sobota|sobotu|nedele|nedeli)\b`)
	clockRe    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	ampmRe     = regexp.MustCompile(`\b(1[0-2]|0?[1-9])(?::([0-5]\d))?\s?(am|pm)\b`)
	hourSuffRe = regexp.MustCompile(`\b([01]?\d|2[0-3])\s?h\b`)
	atHourRe   = regexp.MustCompile(`\b(?:at|v|ve|o)\s+([01]?\d|2[0-3])\b(?:\s+(?:hodin\w*|hod|o\s*clock))?`)
)

var relDays = map[string]int{
	"today": 0, "tonight": 0, "dnes": 0, "dneska": 0, "dnesni": 0, "vecer": 0,
	"tomorrow": 1, "zitra": 1,
	"day after tomorrow": 2, "pozitri": 2,
}

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "pondeli": time.Monday,
	"tuesday": time.Tuesday, "utery": time.Tuesday,
	"wednesday": time.Wednesday, "streda": time.Wednesday, "stredu": time.Wednesday,
	"thursday": time.Thursday, "ctvrtek": time.Thursday,
	"friday": time.Friday, "patek": time.Friday,
	"saturday": time.Saturday, "sobota": time.Saturday, "sobotu": time.Saturday,
	"sunday": time.Sunday, "nedele": time.Sunday, "nedeli": time.Sunday,
}

// leading phrases that say what to do rather than what it is about,
// longest first
var triggers = []string{
	"please", "prosim",
	"remind me to", "remind me", "don t forget to", "dont forget to",
	"i need to", "i have to", "add a task to", "add task", "create a task to", "new task",
	"todo", "to do", "task",
	"schedule a", "schedule", "add to my calendar", "add to calendar", "put in my calendar",
	"remember that", "note that", "write down", "jot down", "save note", "note",
	"pripomen mi", "pripomen", "nezapomen", "musim", "pridej ukol", "ukol",
	"naplanuj mi", "naplanuj", "pridej do kalendare", "do kalendare",
	"zapamatuj si ze", "zapamatuj si", "poznamenej si", "poznamenej", "zapis si", "zapis", "poznamka",
}

// connectors dropped when they directly precede a removed date or time
var connectors = map[string]bool{
	"at": true, "on": true, "by": true, "for": true, "in": true,
	"v": true, "ve": true, "o": true, "na": true, "do": true, "k": true,
	"and": true, "a": true,
}

// cues reports whether folded text mentions a date or a clock time.
func cues(folded string) (hasDate, hasTime bool) {
	hasDate = isoDateRe.MatchString(folded) || dotDateRe.MatchString(folded) ||
		relDayRe.MatchString(folded) || weekdayRe.MatchString(folded)
	hasTime = clockRe.MatchString(folded) || ampmRe.MatchString(folded) ||
		hourSuffRe.MatchString(folded) || atHourRe.MatchString(folded)
	return hasDate, hasTime
}

type extraction struct {
	src    []rune
	folded string
	// removed marks runes of src that are not part of the title
	removed []bool
}

// Extract finds title, date and time in text relative to now. Dates are
// resolved in now's location.
func Extract(text string, now time.Time) Details {
	text = clip(text)
	ex := &extraction{
		src:    []rune(text),
		folded: string(textnorm.FoldRunes(text)),
	}
	ex.removed = make([]bool, len(ex.src))

	var d Details
	ex.findDate(&d, now)
	ex.findTime(&d)
	ex.dropConnectors()
	ex.dropTriggers()
	d.Title = ex.title()
	if d.Title == "" {
		d.Title = strings.Join(strings.Fields(text), " ")
	}
	return d
}

func (ex *extraction) findDate(d *Details, now time.Time) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	set := func(t time.Time) {
		if d.Date == nil {
			d.Date = &t
		}
	}

	for _, m := range ex.find(isoDateRe) {
		y, _ := strconv.Atoi(ex.group(m, 1))
		mo, _ := strconv.Atoi(ex.group(m, 2))
		day, _ := strconv.Atoi(ex.group(m, 3))
		if t, ok := validDate(y, mo, day, loc); ok {
			set(t)
			ex.mark(m[0], m[1])
		}
	}

	for _, m := range ex.find(dotDateRe) {
		day, _ := strconv.Atoi(ex.group(m, 1))
		mo, _ := strconv.Atoi(ex.group(m, 2))
		y := now.Year()
		explicitYear := m[6] >= 0
		if explicitYear {
			y, _ = strconv.Atoi(ex.group(m, 3))
		}
		t, ok := validDate(y, mo, day, loc)
		if !ok {
			continue
		}
		if !explicitYear && t.Before(today) {
			t = t.AddDate(1, 0, 0)
		}
		set(t)
		ex.mark(m[0], m[1])
	}

	for _, m := range ex.find(relDayRe) {
		set(today.AddDate(0, 0, relDays[ex.group(m, 1)]))
		ex.mark(m[0], m[1])
	}

	for _, m := range ex.find(weekdayRe) {
		wd := weekdays[ex.group(m, 1)]
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		set(today.AddDate(0, 0, ahead))
		ex.mark(m[0], m[1])
	}
}

func (ex *extraction) findTime(d *Details) {
	setTime := func(h, m int) {
		if !d.HasTime {
			d.HasTime, d.Hour, d.Minute = true, h, m
		}
	}

	for _, m := range ex.find(clockRe) {
		h, _ := strconv.Atoi(ex.group(m, 1))
		mi, _ := strconv.Atoi(ex.group(m, 2))
		setTime(h, mi)
		ex.mark(m[0], m[1])
	}

	for _, m := range ex.find(ampmRe) {
		h, _ := strconv.Atoi(ex.group(m, 1))
		mi := 0
		if m[4] >= 0 {
			mi, _ = strconv.Atoi(ex.group(m, 2))
		}
		h %= 12
		if ex.group(m, 3) == "pm" {
			h += 12
		}
		setTime(h, mi)
		ex.mark(m[0], m[1])
	}

	for _, m := range ex.find(hourSuffRe) {
		h, _ := strconv.Atoi(ex.group(m, 1))
		setTime(h, 0)
		ex.mark(m[0], m[1])
	}

	for _, m := range ex.find(atHourRe) {
		h, _ := strconv.Atoi(ex.group(m, 1))
		// "at 3" means the afternoon
		if h >= 1 && h <= 7 {
			h += 12
		}
		setTime(h, 0)
		ex.mark(m[0], m[1])
	}
}

// find returns matches that do not overlap anything already removed.
func (ex *extraction) find(re *regexp.Regexp) [][]int {
	var out [][]int
	for _, m := range re.FindAllStringSubmatchIndex(ex.folded, -1) {
		if !ex.overlaps(m[0], m[1]) {
			out = append(out, m)
		}
	}
	return out
}

func (ex *extraction) group(m []int, n int) string {
	if m[2*n] < 0 {
		return ""
	}
	return ex.folded[m[2*n]:m[2*n+1]]
}

// runeIdx converts a byte offset in folded to a rune index in src.
func (ex *extraction) runeIdx(off int) int {
	return utf8.RuneCountInString(ex.folded[:off])
}

func (ex *extraction) overlaps(from, to int) bool {
	for i := ex.runeIdx(from); i < ex.runeIdx(to); i++ {
		if ex.removed[i] {
			return true
		}
	}
	return false
}

func (ex *extraction) mark(from, to int) {
	for i := ex.runeIdx(from); i < ex.runeIdx(to); i++ {
		ex.removed[i] = true
	}
}

type span struct{ from, to int }

// words lists the rune spans of the remaining words in src.
func (ex *extraction) words() []span {
	folded := []rune(ex.folded)
	var out []span
	start := -1
	for i := 0; i <= len(folded); i++ {
		inWord := i < len(folded) && !ex.removed[i] && isWordRune(folded[i])
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, span{start, i})
			start = -1
		}
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func (ex *extraction) wordText(s span) string {
	return string([]rune(ex.folded)[s.from:s.to])
}

func (ex *extraction) dropConnectors() {
	folded := []rune(ex.folded)
	for _, w := range ex.words() {
		if !connectors[ex.wordText(w)] {
			continue
		}
		// next non-space rune must be a removed one
		i := w.to
		for i < len(folded) && unicode.IsSpace(folded[i]) {
			i++
		}
		if i < len(folded) && ex.removed[i] {
			for j := w.from; j < w.to; j++ {
				ex.removed[j] = true
			}
		}
	}
}

// dropTriggers strips command phrases from the start of the message.
func (ex *extraction) dropTriggers() {
	for {
		ws := ex.words()
		if len(ws) == 0 {
			return
		}
		stripped := false
		for _, t := range triggers {
			parts := strings.Fields(t)
			if len(parts) > len(ws) {
				continue
			}
			ok := true
			for i, p := range parts {
				if ex.wordText(ws[i]) != p {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			for j := ws[0].from; j < ws[len(parts)-1].to; j++ {
				ex.removed[j] = true
			}
			stripped = true
			break
		}
		if !stripped {
			return
		}
	}
}

func (ex *extraction) title() string {
	var sb strings.Builder
	for i, r := range ex.src {
		if ex.removed[i] {
			sb.WriteRune(' ')
			continue
		}
		sb.WriteRune(r)
	}

	t := strings.Join(strings.Fields(sb.String()), " ")
	t = strings.TrimFunc(t, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",.:;-!?", r)
	})
	// "call mom ," leaves a dangling separator after removal
	t = strings.ReplaceAll(t, " ,", ",")

	if t == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(first)) + t[size:]
}

func validDate(y, m, d int, loc *time.Location) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, loc)
	// time.Date normalises 31.2. into March
	if t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}
