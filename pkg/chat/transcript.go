package chat

import "encoding/json"

// Transcript is the ordered list of turns of one conversation. Every
// function here returns a new value; a published Transcript is never
// modified afterwards.
type Transcript struct {
	turns []Turn
}

func NewTranscript(turns ...Turn) Transcript {
	return Transcript{turns: cloneTurns(turns)}
}

func cloneTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return nil
	}
	out := make([]Turn, len(turns))
	for i, t := range turns {
		out[i] = t.WithThoughts(t.Thoughts)
	}
	return out
}

func AddTurn(t Transcript, turns ...Turn) Transcript {
	out := make([]Turn, len(t.turns), len(t.turns)+len(turns))
	copy(out, t.turns)
	out = append(out, cloneTurns(turns)...)
	return Transcript{turns: out}
}

// ReplaceLast swaps the final turn. It returns t unchanged when empty.
func ReplaceLast(t Transcript, turn Turn) Transcript {
	if len(t.turns) == 0 {
		return t
	}
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	out[len(out)-1] = turn.WithThoughts(turn.Thoughts)
	return Transcript{turns: out}
}

// Turns returns a deep copy of the turns
func (t Transcript) Turns() []Turn {
	return cloneTurns(t.turns)
}

func (t Transcript) Len() int {
	return len(t.turns)
}

func (t Transcript) IsEmpty() bool {
	return len(t.turns) == 0
}

// At returns the turn at index i
func (t Transcript) At(i int) (Turn, bool) {
	if i < 0 || i >= len(t.turns) {
		return Turn{}, false
	}
	return t.turns[i].WithThoughts(t.turns[i].Thoughts), true
}

func (t Transcript) LastTurn() (Turn, bool) {
	return t.At(len(t.turns) - 1)
}

func (t Transcript) LastAssistantTurn() (Turn, bool) {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].IsAssistant() {
			return t.At(i)
		}
	}
	return Turn{}, false
}

func (t Transcript) LastUserTurn() (Turn, bool) {
	for i := len(t.turns) - 1; i >= 0; i-- {
		if t.turns[i].IsUser() {
			return t.At(i)
		}
	}
	return Turn{}, false
}

func (t Transcript) UserTurnCount() int {
	count := 0
	for _, turn := range t.turns {
		if turn.IsUser() {
			count++
		}
	}
	return count
}

// endsWithAssistant reports whether the final turn is an assistant turn
func (t Transcript) endsWithAssistant() bool {
	last, ok := t.LastTurn()
	return ok && last.IsAssistant()
}

func (t Transcript) MarshalJSON() ([]byte, error) {
	if t.turns == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.turns)
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return err
	}
	t.turns = cloneTurns(turns)
	return nil
}
