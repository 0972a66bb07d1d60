package intent

import (
	"strings"

	"github.com/sandevgo/brain/internal/core"
)

// rule adds weight to intent when its phrase occurs in the folded words of
// a message. A token ending in * matches any word with that prefix.
type rule struct {
	intent core.Intent
	phrase []string
	weight float64
}

func r(intent core.Intent, weight float64, phrases ...string) []rule {
	out := make([]rule, 0, len(phrases))
	for _, p := range phrases {
		out = append(out, rule{intent: intent, phrase: strings.Fields(p), weight: weight})
	}
	return out
}

var rules = concat(
	// schedule_event
	r(core.IntentScheduleEvent, 2,
		"schedule", "meeting", "appointment", "calendar", "book a", "reservation",
		"schuzk*", "kalendar*", "naplanuj*", "udalost*", "rezervac*", "porad*",
	),
	r(core.IntentScheduleEvent, 1.5,
		"event", "meet with", "dinner with", "lunch with", "call with",
		"sraz", "termin*", "sejdem*", "obed s", "vecere s",
	),

	// create_task
	r(core.IntentCreateTask, 2.5,
		"remind me", "pripomen*",
	),
	r(core.IntentCreateTask, 2,
		"todo", "to do", "task", "don t forget", "dont forget",
		"ukol*", "nezapomen*",
	),
	r(core.IntentCreateTask, 1,
		"need to", "have to", "must", "buy", "pick up",
		"musim", "koupit", "kup", "udelat", "vyzvednout", "zavolat",
	),

	// save_note
	r(core.IntentSaveNote, 2.5,
		"remember that", "note that", "zapamatuj*", "poznamenej*",
	),
	r(core.IntentSaveNote, 2,
		"note", "notes", "write down", "jot down", "save this",
		"poznamk*", "zapis*",
	),
	r(core.IntentSaveNote, 1,
		"fyi", "idea", "napad", "uloz*",
	),

	// query_memory
	r(core.IntentQueryMemory, 3,
		"do you remember", "remind me what", "remind me when", "remind me where",
		"pamatujes*", "pripomen mi co", "pripomen mi kdy", "pripomen mi kde",
	),
	r(core.IntentQueryMemory, 2.5,
		"what did i", "where did i", "when did i", "did i tell", "what did we",
		"co jsem", "kdy jsem", "kde jsem", "rikal jsem", "co vis",
	),
	r(core.IntentQueryMemory, 2,
		"what is my", "what s my", "whats my", "recall", "what do you know",
		"jaky je muj", "jake je moje", "jaka je moje",
	),
	r(core.IntentQueryMemory, 1.5,
		"search", "look up", "what was", "najdi", "vyhledej",
	),

	// small_talk
	r(core.IntentSmallTalk, 2.5,
		"how are you", "jak se mas", "jak se vede",
	),
	r(core.IntentSmallTalk, 2,
		"hi", "hello", "hey", "thanks", "thank you", "good morning", "good night",
		"good evening", "bye", "goodbye",
		"ahoj", "cau", "cus", "nazdar", "dekuj*", "diky", "dobre rano",
		"dobry den", "dobry vecer", "dobrou noc",
	),
	r(core.IntentSmallTalk, 1,
		"ok", "okay", "cool", "nice", "great", "super", "jo", "dobre",
	),
)

// Date and time cues push towards scheduling. A bare question leans to
// memory lookup.
const (
	timeCueWeight     = 1.5
	dateCueWeight     = 0.5
	questionCueWeight = 0.5
)

// precedence breaks score ties, earlier wins.
var precedence = [...]core.Intent{
	core.IntentScheduleEvent,
	core.IntentCreateTask,
	core.IntentSaveNote,
	core.IntentQueryMemory,
	core.IntentSmallTalk,
}

func concat(groups ...[]rule) []rule {
	var out []rule
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// matches reports whether phrase occurs as a contiguous word run in words.
func (r rule) matches(words []string) bool {
	n := len(r.phrase)
	for i := 0; i+n <= len(words); i++ {
		ok := true
		for j, tok := range r.phrase {
			if !tokenMatch(tok, words[i+j]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func tokenMatch(tok, word string) bool {
	if stem, ok := strings.CutSuffix(tok, "*"); ok {
		return strings.HasPrefix(word, stem)
	}
	return tok == word
}
