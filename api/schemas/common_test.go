package schemas

import (
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSummary_Add(t *testing.T) {
	var s RunSummary
	s.Add(PageResult{
		Outcomes: []ClickOutcome{
			{Activated: true, URLChanged: true},
			{Activated: true, RouteChanged: true, PopupDetected: true},
			{Error: "element not found"},
		},
		Forms:  []SubmissionResult{{Success: true}, {Success: false}},
		Popups: []PopupReport{{Degraded: true}, {}},
	})
	s.Add(PageResult{Error: "navigation failed"})

	assert.Equal(t, 2, s.PagesVisited, "failed visits still count as visited")
	assert.Equal(t, 3, s.ElementsProbed)
	assert.Equal(t, 2, s.Activated)
	assert.Equal(t, 1, s.URLChanges)
	assert.Equal(t, 1, s.RouteChanges)
	assert.Equal(t, 1, s.PopupsDetected)
	assert.Equal(t, 2, s.FormsSubmitted)
	assert.Equal(t, 1, s.FormsSucceeded)
	assert.Equal(t, 1, s.DegradedPopups)
}

func TestElementType_Priority(t *testing.T) {
	assert.Less(t, ElementButton.Priority(), ElementLink.Priority())
	assert.Less(t, ElementLink.Priority(), ElementContainer.Priority())
	assert.Equal(t, ElementOther.Priority(), ElementForm.Priority())
}

func TestClickOutcome_JSONTags(t *testing.T) {
	raw, err := json.Marshal(ClickOutcome{Selector: "#go", Activated: true})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "#go", fields["selector"])
	assert.Equal(t, true, fields["activated"])
	assert.NotContains(t, fields, "popup", "nil popups are omitted")
	assert.NotContains(t, fields, "error")
	assert.Contains(t, fields, "route_changed", "effect flags are always present")
}
