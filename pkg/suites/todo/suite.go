// Package todo is the built-in TodoMVC suite.
package todo

import (
	"context"
	"fmt"

	"github.com/entrhq/uiharness/pkg/driver"
	"github.com/entrhq/uiharness/pkg/pages"
	"github.com/entrhq/uiharness/pkg/runner"
)

// Cases returns the suite's cases bound to baseURL.
func Cases(baseURL string) []runner.Case {
	scenarios := []struct {
		name string
		run  func(*pages.TodoPage) error
	}{
		{"add_todo", addTodo},
		{"mark_complete", markComplete},
		{"filter_active_completed", filterActiveCompleted},
		{"delete_todo", deleteTodo},
		{"persistence_in_same_session", persistence},
		{"edit_todo", editTodo},
		{"toggle_all_and_clear", toggleAllAndClear},
		{"ignore_blank_input", ignoreBlank},
	}

	cases := make([]runner.Case, 0, len(scenarios))
	for _, s := range scenarios {
		run := s.run
		cases = append(cases, runner.Case{
			ID: "todo/" + s.name,
			Body: func(ctx context.Context, page driver.Page) error {
				todo := pages.NewTodoPage(page, baseURL)
				if err := todo.Open(); err != nil {
					return err
				}
				return run(todo)
			},
		})
	}
	return cases
}

func addTodo(todo *pages.TodoPage) error {
	if _, err := todo.AddTodo("write tests"); err != nil {
		return err
	}
	return todo.AssertCount(1)
}

func markComplete(todo *pages.TodoPage) error {
	if _, err := todo.AddTodo("ship it"); err != nil {
		return err
	}
	if err := todo.Toggle(0); err != nil {
		return err
	}
	return todo.AssertItemCompleted(0, true)
}

func filterActiveCompleted(todo *pages.TodoPage) error {
	if _, err := todo.AddTodos("first", "second"); err != nil {
		return err
	}
	if err := todo.Toggle(0); err != nil {
		return err
	}

	if err := todo.FilterActive(); err != nil {
		return err
	}
	if err := todo.AssertCount(1); err != nil {
		return err
	}

	if err := todo.FilterCompleted(); err != nil {
		return err
	}
	if err := todo.AssertCount(1); err != nil {
		return err
	}

	if err := todo.FilterAll(); err != nil {
		return err
	}
	return todo.AssertCount(2)
}

func deleteTodo(todo *pages.TodoPage) error {
	if _, err := todo.AddTodo("remove me"); err != nil {
		return err
	}
	if err := todo.Delete(0); err != nil {
		return err
	}
	return todo.AssertCount(0)
}

func persistence(todo *pages.TodoPage) error {
	if _, err := todo.AddTodo("keep me"); err != nil {
		return err
	}
	if err := todo.Page.Reload(); err != nil {
		return err
	}
	return todo.AssertCount(1)
}

func editTodo(todo *pages.TodoPage) error {
	if _, err := todo.AddTodo("draft"); err != nil {
		return err
	}
	if _, err := todo.Edit(0, "  final  "); err != nil {
		return err
	}
	return todo.AssertItemText(0, "final")
}

func toggleAllAndClear(todo *pages.TodoPage) error {
	if _, err := todo.AddTodos("one", "two", "three"); err != nil {
		return err
	}
	if err := todo.ToggleAll(); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if err := todo.AssertItemCompleted(i, true); err != nil {
			return err
		}
	}
	if err := todo.ClearCompleted(); err != nil {
		return err
	}
	return todo.AssertCount(0)
}

func ignoreBlank(todo *pages.TodoPage) error {
	created, err := todo.AddTodos("   ", "real")
	if err != nil {
		return err
	}
	if len(created) != 1 {
		return fmt.Errorf("expected 1 todo created, got %d", len(created))
	}
	if err := todo.Page.ExpectVisible(pages.Footer); err != nil {
		return err
	}
	return todo.AssertCount(1)
}
