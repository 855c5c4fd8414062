package pages

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/entrhq/uiharness/pkg/driver"
)

// TodoMVC selectors.
const (
	NewTodo        = ".new-todo"
	TodoItems      = ".todo-list li"
	TodoLabel      = "label"
	TodoToggle     = ".toggle"
	TodoDestroy    = ".destroy"
	TodoEdit       = ".edit"
	ToggleAll      = ".toggle-all"
	ClearCompleted = ".clear-completed"
	Filters        = ".filters a"
	Footer         = ".footer"
)

// TodoItem is a snapshot of one rendered row.
type TodoItem struct {
	Text      string
	Completed bool
}

// TodoPage drives the TodoMVC app.
type TodoPage struct {
	BasePage
}

// NewTodoPage creates a TodoMVC page object.
func NewTodoPage(page driver.Page, baseURL string) *TodoPage {
	return &TodoPage{BasePage: BasePage{Page: page, BaseURL: baseURL}}
}

// Item returns the selector of the row at index.
func Item(index int) string {
	return fmt.Sprintf("%s >> nth=%d", TodoItems, index)
}

func within(parent, child string) string {
	return parent + " >> " + child
}

// Open loads the app and waits for the input to be ready.
func (p *TodoPage) Open() error {
	if err := p.Goto(""); err != nil {
		return err
	}
	return p.ExpectVisible(NewTodo)
}

// AddTodo submits one todo and returns its trimmed text. Blank input is
// ignored by the app; AddTodo then returns "" after checking that no row
// was added.
func (p *TodoPage) AddTodo(text string) (string, error) {
	before, err := p.Page.Count(TodoItems)
	if err != nil {
		return "", err
	}
	if err := p.Page.Fill(NewTodo, text); err != nil {
		return "", err
	}
	if err := p.Page.Press(NewTodo, "Enter"); err != nil {
		return "", err
	}

	created := strings.TrimSpace(text)
	if created == "" {
		return "", p.Page.ExpectCount(TodoItems, before)
	}
	if err := p.Page.ExpectCount(TodoItems, before+1); err != nil {
		return "", err
	}
	if err := p.Page.ExpectText(within(Item(before), TodoLabel), created); err != nil {
		return "", err
	}
	return created, nil
}

// AddTodos adds every item and returns the ones that were created.
func (p *TodoPage) AddTodos(items ...string) ([]string, error) {
	var created []string
	for _, item := range items {
		text, err := p.AddTodo(item)
		if err != nil {
			return created, err
		}
		if text != "" {
			created = append(created, text)
		}
	}
	return created, nil
}

// Toggle clicks the row's checkbox.
func (p *TodoPage) Toggle(index int) error {
	return p.Page.Click(within(Item(index), TodoToggle))
}

// SetCompleted checks or unchecks the row's checkbox.
func (p *TodoPage) SetCompleted(index int, completed bool) error {
	return p.Page.SetChecked(within(Item(index), TodoToggle), completed)
}

// ToggleAll marks every row completed.
func (p *TodoPage) ToggleAll() error {
	return p.Page.SetChecked(ToggleAll, true)
}

// ClearCompleted removes completed rows.
func (p *TodoPage) ClearCompleted() error {
	if err := p.Page.ExpectVisible(ClearCompleted); err != nil {
		return err
	}
	return p.Page.Click(ClearCompleted)
}

// Delete removes the row at index through its hover-only destroy button.
func (p *TodoPage) Delete(index int) error {
	before, err := p.Page.Count(TodoItems)
	if err != nil {
		return err
	}
	if index < 0 || index >= before {
		return fmt.Errorf("no todo at index %d, %d rows shown", index, before)
	}
	row := Item(index)
	if err := p.Page.Hover(row); err != nil {
		return err
	}
	if err := p.Page.Click(within(row, TodoDestroy)); err != nil {
		return err
	}
	return p.Page.ExpectCount(TodoItems, before-1)
}

// Edit replaces the row's text through the double-click editor.
func (p *TodoPage) Edit(index int, text string) (string, error) {
	row := Item(index)
	if err := p.Page.DoubleClick(within(row, TodoLabel)); err != nil {
		return "", err
	}
	editor := within(row, TodoEdit)
	if err := p.Page.ExpectVisible(editor); err != nil {
		return "", err
	}
	if err := p.Page.Fill(editor, text); err != nil {
		return "", err
	}
	if err := p.Page.Press(editor, "Enter"); err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(text)
	return trimmed, p.Page.ExpectText(within(row, TodoLabel), trimmed)
}

func filter(name string) string {
	return fmt.Sprintf("%s:text-is(%q)", Filters, name)
}

// FilterAll shows every row.
func (p *TodoPage) FilterAll() error { return p.Page.Click(filter("All")) }

// FilterActive shows open rows.
func (p *TodoPage) FilterActive() error { return p.Page.Click(filter("Active")) }

// FilterCompleted shows completed rows.
func (p *TodoPage) FilterCompleted() error { return p.Page.Click(filter("Completed")) }

// AssertCount expects n visible rows.
func (p *TodoPage) AssertCount(n int) error {
	return p.Page.ExpectCount(TodoItems, n)
}

// AssertItemText expects the row's label text.
func (p *TodoPage) AssertItemText(index int, text string) error {
	return p.Page.ExpectText(within(Item(index), TodoLabel), text)
}

// AssertItemCompleted expects the row's checkbox state.
func (p *TodoPage) AssertItemCompleted(index int, completed bool) error {
	return p.Page.ExpectChecked(within(Item(index), TodoToggle), completed)
}

// AssertFilterHash expects the URL to end in the filter's hash route.
func (p *TodoPage) AssertFilterHash(fragment string) error {
	return p.Page.ExpectURL(regexp.MustCompile(regexp.QuoteMeta(fragment) + "$"))
}

// Items snapshots the visible rows.
func (p *TodoPage) Items() ([]TodoItem, error) {
	n, err := p.Page.Count(TodoItems)
	if err != nil {
		return nil, err
	}
	items := make([]TodoItem, 0, n)
	for i := 0; i < n; i++ {
		text, err := p.Page.Text(within(Item(i), TodoLabel))
		if err != nil {
			return nil, err
		}
		done, err := p.Page.IsChecked(within(Item(i), TodoToggle))
		if err != nil {
			return nil, err
		}
		items = append(items, TodoItem{Text: text, Completed: done})
	}
	return items, nil
}

// Count returns the number of visible rows.
func (p *TodoPage) Count() (int, error) {
	return p.Page.Count(TodoItems)
}
