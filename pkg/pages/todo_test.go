package pages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uiharness/pkg/driver"
	"github.com/entrhq/uiharness/pkg/driver/drivertest"
)

const baseURL = "https://demo.playwright.dev/todomvc/"

func open(t *testing.T, drv *drivertest.Driver) *drivertest.Handle {
	t.Helper()
	h, err := drv.Open(context.Background(), driver.Options{})
	require.NoError(t, err)
	return h.(*drivertest.Handle)
}

func TestGoto_RetriesOnceOnTimeout(t *testing.T) {
	drv := drivertest.New()
	drv.NavigateTimeouts = 1
	h := open(t, drv)

	require.NoError(t, NewTodoPage(h, baseURL).Open())
	assert.Equal(t, baseURL, h.URL())
	assert.Equal(t, []string{
		"navigate " + baseURL,
		"navigate " + baseURL,
		"expect visible .new-todo",
	}, h.Actions())
}

func TestGoto_GivesUpAfterSecondTimeout(t *testing.T) {
	drv := drivertest.New()
	drv.NavigateTimeouts = 2
	h := open(t, drv)

	err := NewTodoPage(h, baseURL).Open()
	assert.ErrorIs(t, err, driver.ErrTimeout)
	assert.Len(t, h.Actions(), 2)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, baseURL, joinURL(baseURL, ""))
	assert.Equal(t, baseURL+"#/active", joinURL(baseURL, "#/active"))
	assert.Equal(t, baseURL+"index.html", joinURL(baseURL, "/index.html"))
}

func TestAddTodo(t *testing.T) {
	h := open(t, drivertest.New())
	todo := NewTodoPage(h, baseURL)

	text, err := todo.AddTodo("  write tests  ")
	require.NoError(t, err)
	assert.Equal(t, "write tests", text)
	assert.Equal(t, []string{
		"count .todo-list li",
		`fill .new-todo "  write tests  "`,
		"press .new-todo Enter",
		"expect count .todo-list li 1",
		`expect text .todo-list li >> nth=0 >> label "write tests"`,
	}, h.Actions())
}

func TestAddTodo_BlankIsIgnored(t *testing.T) {
	h := open(t, drivertest.New())
	h.SetCount(TodoItems, 2)

	text, err := NewTodoPage(h, baseURL).AddTodo("   ")
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Contains(t, h.Actions(), "expect count .todo-list li 2")
}

func TestAddTodo_CountMismatchFails(t *testing.T) {
	h := open(t, drivertest.New())
	h.SetCount(TodoItems, 0)

	_, err := NewTodoPage(h, baseURL).AddTodo("never shows up")
	assert.Error(t, err)
}

func TestAddTodos_SkipsBlank(t *testing.T) {
	h := open(t, drivertest.New())

	created, err := NewTodoPage(h, baseURL).AddTodos("first", " ", "second")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, created)
}

func TestDelete(t *testing.T) {
	h := open(t, drivertest.New())
	h.QueueCount(TodoItems, 2)

	require.NoError(t, NewTodoPage(h, baseURL).Delete(0))
	assert.Equal(t, []string{
		"count .todo-list li",
		"hover .todo-list li >> nth=0",
		"click .todo-list li >> nth=0 >> .destroy",
		"expect count .todo-list li 1",
	}, h.Actions())
}

func TestDelete_OutOfRange(t *testing.T) {
	h := open(t, drivertest.New())

	err := NewTodoPage(h, baseURL).Delete(0)
	require.Error(t, err)
	assert.Equal(t, []string{"count .todo-list li"}, h.Actions())
}

func TestEdit(t *testing.T) {
	h := open(t, drivertest.New())

	text, err := NewTodoPage(h, baseURL).Edit(1, " renamed ")
	require.NoError(t, err)
	assert.Equal(t, "renamed", text)
	assert.Equal(t, []string{
		"dblclick .todo-list li >> nth=1 >> label",
		"expect visible .todo-list li >> nth=1 >> .edit",
		`fill .todo-list li >> nth=1 >> .edit " renamed "`,
		"press .todo-list li >> nth=1 >> .edit Enter",
		`expect text .todo-list li >> nth=1 >> label "renamed"`,
	}, h.Actions())
}

func TestFilters(t *testing.T) {
	h := open(t, drivertest.New())
	todo := NewTodoPage(h, baseURL)

	require.NoError(t, todo.FilterAll())
	require.NoError(t, todo.FilterActive())
	require.NoError(t, todo.FilterCompleted())
	assert.Equal(t, []string{
		`click .filters a:text-is("All")`,
		`click .filters a:text-is("Active")`,
		`click .filters a:text-is("Completed")`,
	}, h.Actions())
}

func TestAssertFilterHash(t *testing.T) {
	h := open(t, drivertest.New())
	require.NoError(t, h.Navigate(baseURL+"#/completed"))
	todo := NewTodoPage(h, baseURL)

	assert.NoError(t, todo.AssertFilterHash("#/completed"))
	assert.Error(t, todo.AssertFilterHash("#/active"))
}

func TestItems(t *testing.T) {
	h := open(t, drivertest.New())
	h.SetCount(TodoItems, 2)
	h.SetText(Item(0)+" >> label", "ship it")
	h.SetCheckedState(Item(0)+" >> .toggle", true)
	h.SetText(Item(1)+" >> label", "write docs")

	items, err := NewTodoPage(h, baseURL).Items()
	require.NoError(t, err)
	assert.Equal(t, []TodoItem{
		{Text: "ship it", Completed: true},
		{Text: "write docs", Completed: false},
	}, items)
}

func TestSetCompletedAndAssert(t *testing.T) {
	h := open(t, drivertest.New())
	todo := NewTodoPage(h, baseURL)

	require.NoError(t, todo.SetCompleted(0, true))
	assert.NoError(t, todo.AssertItemCompleted(0, true))
	assert.Error(t, todo.AssertItemCompleted(0, false))
}

func TestClosedSessionFailsFast(t *testing.T) {
	h := open(t, drivertest.New())
	require.NoError(t, h.Close())

	_, err := NewTodoPage(h, baseURL).AddTodo("late")
	assert.ErrorIs(t, err, drivertest.ErrClosed)
}
