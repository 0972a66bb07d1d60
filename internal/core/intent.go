package core

import (
	"encoding/json"
	"fmt"
)

// Intent is the closed set of things a message can ask for.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentScheduleEvent
	IntentCreateTask
	IntentSaveNote
	IntentQueryMemory
	IntentSmallTalk

	intentCount
)

// IntentCount is the size of the closed set, for fixed dispatch tables.
const IntentCount = int(intentCount)

var intentNames = [intentCount]string{
	IntentUnknown:       "unknown",
	IntentScheduleEvent: "schedule_event",
	IntentCreateTask:    "create_task",
	IntentSaveNote:      "save_note",
	IntentQueryMemory:   "query_memory",
	IntentSmallTalk:     "small_talk",
}

func AllIntents() []Intent {
	out := make([]Intent, 0, intentCount)
	for i := Intent(0); i < intentCount; i++ {
		out = append(out, i)
	}
	return out
}

func (i Intent) Valid() bool {
	return i >= 0 && i < intentCount
}

func (i Intent) String() string {
	if !i.Valid() {
		return intentNames[IntentUnknown]
	}
	return intentNames[i]
}

// RequiresProvider reports whether handling the intent calls Google on the
// user's behalf and therefore needs a valid access token.
func (i Intent) RequiresProvider() bool {
	return i == IntentScheduleEvent || i == IntentCreateTask
}

func ParseIntent(s string) (Intent, error) {
	for i, name := range intentNames {
		if name == s {
			return Intent(i), nil
		}
	}
	return IntentUnknown, fmt.Errorf("unknown intent %q", s)
}

func (i Intent) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *Intent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseIntent(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
