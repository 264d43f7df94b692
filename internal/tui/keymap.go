package tui

import "charm.land/bubbles/v2/key"

// keyMap holds the list-mode key bindings. Scan, settings, and guide
// views interpret keys directly.
type keyMap struct {
	quit           key.Binding
	reload         key.Binding
	toggleHelp     key.Binding
	moveUp         key.Binding
	moveDown       key.Binding
	addTask        key.Binding
	editTask       key.Binding
	taskInfo       key.Binding
	toggleMark     key.Binding
	completeTask   key.Binding
	archiveTask    key.Binding
	reenterTask    key.Binding
	splitTask      key.Binding
	toggleTimer    key.Binding
	toggleCollapse key.Binding
	unlinkChildren key.Binding
	yankText       key.Binding
	beginScan      key.Binding
	reflect        key.Binding
	settings       key.Binding
	guide          key.Binding
}

// newKeyMap constructs key map.
func newKeyMap() keyMap {
	return keyMap{
		quit:           key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:         key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "reload")),
		toggleHelp:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveUp:         key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "task up")),
		moveDown:       key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "task down")),
		addTask:        key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new task")),
		editTask:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit task")),
		taskInfo:       key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "task info")),
		toggleMark:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark/unmark")),
		completeTask:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "complete")),
		archiveTask:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "archive")),
		reenterTask:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "re-enter at end")),
		splitTask:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "split task")),
		toggleTimer:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "start/stop timer")),
		toggleCollapse: key.NewBinding(key.WithKeys("z"), key.WithHelp("z", "collapse children")),
		unlinkChildren: key.NewBinding(key.WithKeys("U", "shift+u"), key.WithHelp("U", "unlink children")),
		yankText:       key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yank text")),
		beginScan:      key.NewBinding(key.WithKeys("S", "shift+s"), key.WithHelp("S", "begin scan")),
		reflect:        key.NewBinding(key.WithKeys("R", "shift+r"), key.WithHelp("R", "daily stats")),
		settings:       key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "settings")),
		guide:          key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "guide")),
	}
}

// ShortHelp handles short help.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.addTask, k.toggleMark, k.completeTask, k.splitTask, k.beginScan, k.taskInfo, k.quit,
	}
}

// FullHelp handles full help.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.addTask, k.editTask, k.taskInfo, k.splitTask, k.yankText, k.toggleHelp, k.reload, k.quit},
		{k.moveUp, k.moveDown, k.toggleMark, k.completeTask, k.archiveTask, k.reenterTask, k.toggleTimer},
		{k.beginScan, k.reflect, k.settings, k.guide, k.toggleCollapse, k.unlinkChildren},
	}
}
