package intent

import (
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Classify(t *testing.T) {
	r := NewRouter()

	tests := []struct {
		text string
		want core.Intent
	}{
		{"remind me to call mom tomorrow", core.IntentCreateTask},
		{"Remind me to buy milk", core.IntentCreateTask},
		{"don't forget to pay rent", core.IntentCreateTask},
		{"Připomeň mi zavolat mámě", core.IntentCreateTask},
		{"nový úkol: vynést koš", core.IntentCreateTask},

		{"Schedule a meeting with Jan tomorrow at 3pm", core.IntentScheduleEvent},
		{"dentist appointment on friday 14:30", core.IntentScheduleEvent},
		{"lunch with Petra on monday at 12:00", core.IntentScheduleEvent},
		{"Naplánuj schůzku zítra v 10:00", core.IntentScheduleEvent},

		{"note that the wifi password is sunflower42", core.IntentSaveNote},
		{"Remember that Anna likes tulips", core.IntentSaveNote},
		{"Poznámka: parkování je za rohem", core.IntentSaveNote},
		{"zapamatuj si, že klíče jsou pod rohožkou", core.IntentSaveNote},

		{"do you remember what Anna likes?", core.IntentQueryMemory},
		{"what's my wifi password?", core.IntentQueryMemory},
		{"remind me what the wifi password is", core.IntentQueryMemory},
		{"Pamatuješ si, co má Anna ráda?", core.IntentQueryMemory},
		{"co jsem říkal o dovolené", core.IntentQueryMemory},

		{"hello!", core.IntentSmallTalk},
		{"thanks a lot", core.IntentSmallTalk},
		{"Ahoj, jak se máš?", core.IntentSmallTalk},
		{"Díky", core.IntentSmallTalk},

		{"", core.IntentUnknown},
		{"   \t\n", core.IntentUnknown},
		{"purple elephants dance", core.IntentUnknown},
		{"?!?", core.IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := r.Explain(tt.text)
			assert.Equal(t, tt.want, got.Intent, "scores=%v matched=%v", got.Scores, got.Matched)
		})
	}
}

func TestRouter_Deterministic(t *testing.T) {
	r := NewRouter()
	text := "remind me to call mom tomorrow"
	first := r.Classify(text)
	for range 50 {
		assert.Equal(t, first, r.Classify(text))
	}
}

func TestRouter_TieUsesPrecedence(t *testing.T) {
	r := NewRouter()
	// "task" and "note" both weigh 2
	got := r.Explain("task note")
	assert.Equal(t, got.Scores[core.IntentCreateTask], got.Scores[core.IntentSaveNote])
	assert.Equal(t, core.IntentCreateTask, got.Intent)
}

func TestRouter_TotalOnArbitraryInput(t *testing.T) {
	r := NewRouter()
	inputs := []string{
		"\xff\xfe\xfd",
		strings.Repeat("a", 100000),
		strings.Repeat("remind me ", 5000),
		"\x00\x01\x02",
		"🙂🙂🙂",
		"12:99 32.13. 2026-02-30",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			got := r.Classify(in)
			assert.True(t, got.Valid())
		})
	}
}

func TestExtract(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	// a Saturday
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, loc)
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, loc)
		return &t
	}

	tests := []struct {
		text    string
		title   string
		date    *time.Time
		hasTime bool
		hour    int
		minute  int
	}{
		{text: "remind me to call mom tomorrow", title: "Call mom", date: day(2026, 10, 18)},
		{text: "Schedule a meeting with Jan tomorrow at 3pm", title: "Meeting with Jan", date: day(2026, 10, 18), hasTime: true, hour: 15},
		{text: "dentist on 2026-11-03 at 14:30", title: "Dentist", date: day(2026, 11, 3), hasTime: true, hour: 14, minute: 30},
		{text: "Připomeň mi zítra vyzvednout balík", title: "Vyzvednout balík", date: day(2026, 10, 18)},
		{text: "Porada v pondělí v 10:00", title: "Porada", date: day(2026, 10, 19), hasTime: true, hour: 10},
		{text: "Večeře s Petrou 24.12. v 18h", title: "Večeře s Petrou", date: day(2026, 12, 24), hasTime: true, hour: 18},
		{text: "výlet 3.1.", title: "Výlet", date: day(2027, 1, 3)},
		{text: "call the bank on saturday", title: "Call the bank", date: day(2026, 10, 24)},
		{text: "buy milk", title: "Buy milk"},
		{text: "todo", title: "todo"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Extract(tt.text, now)
			assert.Equal(t, tt.title, got.Title)
			if tt.date == nil {
				assert.Nil(t, got.Date)
			} else {
				require.NotNil(t, got.Date)
				assert.True(t, tt.date.Equal(*got.Date), "got %v", got.Date)
			}
			assert.Equal(t, tt.hasTime, got.HasTime)
			if tt.hasTime {
				assert.Equal(t, tt.hour, got.Hour)
				assert.Equal(t, tt.minute, got.Minute)
			}
		})
	}
}

func TestDetails_At(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	d := Extract("meeting tomorrow at 16:15", now)
	assert.Equal(t, time.Date(2026, 10, 18, 16, 15, 0, 0, time.UTC), d.At(now))

	d = Extract("call at 11:00", now)
	assert.Equal(t, time.Date(2026, 10, 17, 11, 0, 0, 0, time.UTC), d.At(now))
}
