package models

// Questionnaire is the payload of a question event: a set of questions the
// controller must answer before the question tool resolves.
type Questionnaire struct {
	ID        string     `json:"questionnaire_id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Question is a single prompt within a questionnaire.
type Question struct {
	ID          string   `json:"id"`
	Header      string   `json:"header,omitempty"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Placeholder string   `json:"placeholder,omitempty"`
	Multiple    bool     `json:"multiple"`
	Required    bool     `json:"required"`
}

// Answer is the controller's response to one question.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Values     []string `json:"values"`
}
