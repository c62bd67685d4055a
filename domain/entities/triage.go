package entities

// TriageState is the stage of the guided intake conversation
type TriageState string

const (
	TriageStateIntake     TriageState = "intake"
	TriageStateClarifying TriageState = "clarifying"
	TriageStateConclusion TriageState = "conclusion"
)

// TriageContext is the guided-intake progress of one conversation
type TriageContext struct {
	State         TriageState       `json:"state" bson:"state"`
	Round         int               `json:"round" bson:"round"`
	LastQuestions []string          `json:"last_questions,omitempty" bson:"last_questions,omitempty"`
	Answers       map[string]string `json:"answers,omitempty" bson:"answers,omitempty"`
}

// NewTriageContext returns the context every conversation starts from
func NewTriageContext() TriageContext {
	return TriageContext{State: TriageStateIntake}
}

// Clone returns a deep copy so callers never share slices or maps
func (c TriageContext) Clone() TriageContext {
	out := c
	if c.LastQuestions != nil {
		out.LastQuestions = append([]string(nil), c.LastQuestions...)
	}
	if c.Answers != nil {
		out.Answers = make(map[string]string, len(c.Answers))
		for k, v := range c.Answers {
			out.Answers[k] = v
		}
	}
	return out
}

// Equal reports whether both contexts hold the same progress
func (c TriageContext) Equal(other TriageContext) bool {
	if c.State != other.State || c.Round != other.Round ||
		len(c.LastQuestions) != len(other.LastQuestions) || len(c.Answers) != len(other.Answers) {
		return false
	}
	for i := range c.LastQuestions {
		if c.LastQuestions[i] != other.LastQuestions[i] {
			return false
		}
	}
	for k, v := range c.Answers {
		if w, ok := other.Answers[k]; !ok || w != v {
			return false
		}
	}
	return true
}
