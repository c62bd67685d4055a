package entities

// TurnMode identifies the kind of structured assistant reply
type TurnMode string

const (
	TurnModeQuestion   TurnMode = "question"
	TurnModeConclusion TurnMode = "conclusion"
	TurnModeUrgent     TurnMode = "urgent"
)

// Severity grades how pressing a structured reply is
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Turn is a machine-readable assistant reply
type Turn struct {
	Mode          TurnMode    `json:"mode" bson:"mode" validate:"required,oneof=question conclusion urgent" jsonschema:"enum=question,enum=conclusion,enum=urgent"`
	Title         string      `json:"title" bson:"title" validate:"required" jsonschema:"minLength=1"`
	Question      string      `json:"question,omitempty" bson:"question,omitempty"`
	Options       []Option    `json:"options,omitempty" bson:"options,omitempty" validate:"omitempty,dive"`
	AllowFreeText *bool       `json:"allowFreeText,omitempty" bson:"allow_free_text,omitempty"`
	Progress      *Progress   `json:"progress,omitempty" bson:"progress,omitempty"`
	Severity      Severity    `json:"severity,omitempty" bson:"severity,omitempty" validate:"omitempty,oneof=low medium high" jsonschema:"enum=low,enum=medium,enum=high"`
	Conclusion    *Conclusion `json:"conclusion,omitempty" bson:"conclusion,omitempty"`
}

// Option is a selectable answer offered with a question turn
type Option struct {
	Label string `json:"label" bson:"label" validate:"required"`
	Value string `json:"value" bson:"value"`
	Kind  string `json:"kind,omitempty" bson:"kind,omitempty"`
}

// Progress reports how far the guided intake has come
type Progress struct {
	Step  int `json:"step" bson:"step"`
	Total int `json:"total" bson:"total"`
}

// Conclusion is the summary block of a conclusion or urgent turn
type Conclusion struct {
	Summary       string        `json:"summary" bson:"summary"`
	Probabilities []Probability `json:"probabilities,omitempty" bson:"probabilities,omitempty"`
	NextSteps     []NextStep    `json:"nextSteps,omitempty" bson:"next_steps,omitempty"`
	RedFlags      []string      `json:"redFlags,omitempty" bson:"red_flags,omitempty"`
	CTA           *CTA          `json:"cta,omitempty" bson:"cta,omitempty"`
}

type Probability struct {
	Label   string  `json:"label" bson:"label"`
	Percent float64 `json:"percent" bson:"percent"`
	Note    string  `json:"note,omitempty" bson:"note,omitempty"`
}

type NextStep struct {
	Icon  string `json:"icon,omitempty" bson:"icon,omitempty"`
	Title string `json:"title" bson:"title"`
	Text  string `json:"text,omitempty" bson:"text,omitempty"`
}

type CTA struct {
	Label string `json:"label" bson:"label"`
	Href  string `json:"href" bson:"href"`
}

// Escalates reports whether the turn ends the guided intake
func (t *Turn) Escalates() bool {
	return t.Mode == TurnModeUrgent || t.Mode == TurnModeConclusion
}

// OutputKind discriminates AssistantOutput
type OutputKind string

const (
	OutputKindStructured OutputKind = "structured"
	OutputKindProse      OutputKind = "prose"
)

// AssistantOutput is the classified form of a finished assistant reply.
// Turn is set only when Kind is structured.
type AssistantOutput struct {
	Kind OutputKind `json:"kind" bson:"kind"`
	Turn *Turn      `json:"turn,omitempty" bson:"turn,omitempty"`
	Text string     `json:"text,omitempty" bson:"text,omitempty"`
}

// IsStructured reports whether the output carries a parsed Turn
func (o *AssistantOutput) IsStructured() bool {
	return o != nil && o.Kind == OutputKindStructured && o.Turn != nil
}
