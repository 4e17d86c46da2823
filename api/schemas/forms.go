package schemas

// -- Form Schemas --

// FieldDescriptor is one fillable control inside a form.
type FieldDescriptor struct {
	Selector    string            `json:"selector"`
	InputKind   string            `json:"input_kind"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	NameHint    string            `json:"name_hint"`
	Placeholder string            `json:"placeholder,omitempty"`
	Required    bool              `json:"required"`
	// Markup is the control's outer HTML, truncated.
	Markup string `json:"markup,omitempty"`
}

// ButtonDescriptor is a submit candidate inside or next to a form.
type ButtonDescriptor struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Primary  bool   `json:"primary"`
}

// FormDescriptor is the extracted structure of a form. An empty Inputs slice
// routes value synthesis through the whole-markup oracle query.
type FormDescriptor struct {
	Selector string             `json:"selector"`
	Inputs   []FieldDescriptor  `json:"inputs"`
	Buttons  []ButtonDescriptor `json:"buttons"`
	HTML     string             `json:"-"`
}

// SubmissionResult is the outcome of one form, including its retries.
type SubmissionResult struct {
	FormSelector      string   `json:"form_selector"`
	Success           bool     `json:"success"`
	NewURL            string   `json:"new_url,omitempty"`
	ErrorSignals      []string `json:"error_signals,omitempty"`
	ValidationDetails string   `json:"validation_details"`
	Attempts          int      `json:"attempts"`
	// FieldsUsed holds the number of fields filled on each attempt.
	FieldsUsed []int `json:"fields_used"`
	Recovered  bool  `json:"recovered"`
}
