package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowkaihon/cli-coding-agent/llm"
)

type scriptedClient struct {
	responses []string
	calls     int
}

func (c *scriptedClient) SendMessage(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Response, error) {
	text := c.responses[c.calls]
	c.calls++
	return &llm.Response{Message: llm.TextMessage("assistant", text)}, nil
}

func (c *scriptedClient) StreamMessage(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (<-chan llm.StreamEvent, error) {
	panic("not used")
}

func TestPlanValidateDetectsCycle(t *testing.T) {
	p := &Plan{Steps: []PlanStep{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}}
	_, err := p.Validate()
	require.Error(t, err)
}

func TestPlanValidateOrdersByDependency(t *testing.T) {
	p := &Plan{Steps: []PlanStep{
		{ID: "2", Dependencies: []string{"1"}},
		{ID: "1"},
		{ID: "3", Dependencies: []string{"2"}},
	}}
	order, err := p.Validate()
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, order)
}

func TestPlanValidateRejectsUnknownDependency(t *testing.T) {
	p := &Plan{Steps: []PlanStep{{ID: "1", Dependencies: []string{"ghost"}}}}
	_, err := p.Validate()
	require.Error(t, err)
}

func TestPlanReadyRequiresAllDependenciesDone(t *testing.T) {
	p := &Plan{Steps: []PlanStep{
		{ID: "1", Done: true},
		{ID: "2", Dependencies: []string{"1"}},
	}}
	assert.True(t, p.Ready(*p.StepByID("2")))

	p.Steps[0].Done = false
	assert.False(t, p.Ready(*p.StepByID("2")))
}

func TestPlannerPlanParsesFencedJSON(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Here is the plan:\n```json\n{\"title\":\"Add feature\",\"steps\":[{\"id\":\"1\",\"description\":\"read file\",\"expected_tool\":\"read\"}]}\n```",
	}}
	pl := New(client)
	plan, err := pl.Plan(context.Background(), "add a feature", nil)
	require.NoError(t, err)
	assert.Equal(t, "Add feature", plan.Title)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "read", plan.Steps[0].ExpectedTool)
}

func TestPlannerPlanRetriesOnInvalidJSON(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"not json at all",
		`{"title":"Retry works","steps":[{"id":"1","description":"do it"}]}`,
	}}
	pl := New(client)
	plan, err := pl.Plan(context.Background(), "task", nil)
	require.NoError(t, err)
	assert.Equal(t, "Retry works", plan.Title)
	assert.Equal(t, 2, client.calls)
}

func TestPlannerPlanFailsAfterExceedingRetries(t *testing.T) {
	client := &scriptedClient{responses: []string{"nope", "still nope", "nope again"}}
	pl := New(client)
	_, err := pl.Plan(context.Background(), "task", nil)
	require.Error(t, err)
}

func TestPlannerReplanReferencesOriginalPlan(t *testing.T) {
	client := &scriptedClient{responses: []string{
		`{"title":"Revised","steps":[{"id":"1","description":"retry step"}]}`,
	}}
	pl := New(client)
	orig := &Plan{Title: "Original", Steps: []PlanStep{{ID: "1", Description: "first try"}}}
	plan, err := pl.Replan(context.Background(), orig, "step 1 done", "tool reported blocked")
	require.NoError(t, err)
	assert.Equal(t, "Revised", plan.Title)
}
