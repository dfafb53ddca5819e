// Package diffview renders a leaf-level diff between the current target
// tree and the candidate produced by a translation run, and asks the user
// whether to keep it.
package diffview

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/loctree/loctree/tree"
)

var (
	styleAdded = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))
	styleRemoved = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))
	styleChanged = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3"))
	styleLabel = lipgloss.NewStyle().
			Bold(true)
	stylePath = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#777"))
)

// Presenter writes diffs to Out and reads accept/reject answers from In.
// Quiet suppresses per-chunk previews; AutoAccept answers yes without
// prompting.
type Presenter struct {
	Out        io.Writer
	In         io.Reader
	Quiet      bool
	AutoAccept bool
}

// change is one leaf-level difference.
type change struct {
	path     string
	old, new string
	kind     changeKind
}

type changeKind int

const (
	kindAdded changeKind = iota
	kindRemoved
	kindChanged
)

func diff(original, updated *tree.Tree) []change {
	origFlat := tree.Flatten(original)
	updFlat := tree.Flatten(updated)

	var changes []change
	for _, p := range updFlat.Paths() {
		nv, _ := updFlat.Get(p)
		ov, ok := origFlat.Get(p)
		switch {
		case !ok:
			changes = append(changes, change{path: p, new: nv.Str, kind: kindAdded})
		case ov.Str != nv.Str:
			changes = append(changes, change{path: p, old: ov.Str, new: nv.Str, kind: kindChanged})
		}
	}
	for _, p := range origFlat.Paths() {
		if _, ok := updFlat.Get(p); !ok {
			ov, _ := origFlat.Get(p)
			changes = append(changes, change{path: p, old: ov.Str, kind: kindRemoved})
		}
	}
	return changes
}

func (p *Presenter) render(changes []change, label string) {
	if label != "" {
		fmt.Fprintln(p.Out, styleLabel.Render(label))
	}
	for _, c := range changes {
		switch c.kind {
		case kindAdded:
			fmt.Fprintf(p.Out, "  %s %s %s\n",
				styleAdded.Render("+"), stylePath.Render(c.path), styleAdded.Render(quote(c.new)))
		case kindRemoved:
			fmt.Fprintf(p.Out, "  %s %s %s\n",
				styleRemoved.Render("-"), stylePath.Render(c.path), styleRemoved.Render(quote(c.old)))
		case kindChanged:
			fmt.Fprintf(p.Out, "  %s %s %s %s %s\n",
				styleChanged.Render("~"), stylePath.Render(c.path),
				styleRemoved.Render(quote(c.old)), "→", styleAdded.Render(quote(c.new)))
		}
	}
}

// Preview shows the cumulative diff after a chunk merges.
func (p *Presenter) Preview(original, updated *tree.Tree, label string) {
	if p.Quiet {
		return
	}
	p.render(diff(original, updated), label)
}

// Confirm shows the final diff and asks for a yes/no answer. Anything but
// "y"/"yes" rejects.
func (p *Presenter) Confirm(original, updated *tree.Tree) (bool, error) {
	changes := diff(original, updated)
	if len(changes) == 0 {
		return false, nil
	}
	p.render(changes, fmt.Sprintf("%d changes", len(changes)))
	if p.AutoAccept {
		return true, nil
	}

	fmt.Fprint(p.Out, "Apply these changes? [y/N]: ")
	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading answer: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func quote(s string) string {
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return fmt.Sprintf("%q", s)
}
