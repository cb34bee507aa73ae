// Package plantuml renders bubble graphs as PlantUML object diagrams.
package plantuml

import (
	"fmt"
	"io"
	"strings"

	"github.com/stateforward/go-iventy"
	"github.com/stateforward/go-iventy/designator"
)

type graph struct {
	objects strings.Builder
	edges   strings.Builder
	ids     map[*iventy.Emitter]string
	order   []*iventy.Emitter
}

func (g *graph) visit(emitter *iventy.Emitter) string {
	if id, ok := g.ids[emitter]; ok {
		return id
	}
	id := fmt.Sprintf("emitter%d", len(g.order)+1)
	g.ids[emitter] = id
	g.order = append(g.order, emitter)
	return id
}

func (g *graph) generateEmitter(emitter *iventy.Emitter) {
	id := g.ids[emitter]
	channels := emitter.Channels()
	if len(channels) == 0 {
		fmt.Fprintf(&g.objects, "object %q as %s\n", emitter.Name(), id)
		return
	}
	fmt.Fprintf(&g.objects, "object %q as %s {\n", emitter.Name(), id)
	for _, channel := range channels {
		fmt.Fprintf(&g.objects, "  %s\n", channel)
	}
	fmt.Fprintln(&g.objects, "}")
}

func (g *graph) generateBubble(source string, bubble iventy.Bubble) {
	label := ""
	if len(bubble.Tags) > 0 {
		label = " : " + strings.Join(bubble.Tags, designator.Separator)
	}
	fmt.Fprintf(&g.edges, "%s --> %s%s\n", source, g.visit(bubble.Target), label)
}

// Generate writes a diagram of every emitter reachable from roots, with one
// object per emitter listing its channels and one arrow per bubble edge.
// Emitters reached more than once, including through cycles, appear once.
func Generate(writer io.Writer, roots ...*iventy.Emitter) error {
	g := &graph{ids: map[*iventy.Emitter]string{}}
	for _, root := range roots {
		if root != nil {
			g.visit(root)
		}
	}
	// order grows while edges are walked
	for i := 0; i < len(g.order); i++ {
		emitter := g.order[i]
		g.generateEmitter(emitter)
		for _, bubble := range emitter.Bubbles() {
			g.generateBubble(g.ids[emitter], bubble)
		}
	}
	var builder strings.Builder
	fmt.Fprintln(&builder, "@startuml")
	builder.WriteString(g.objects.String())
	builder.WriteString(g.edges.String())
	fmt.Fprintln(&builder, "@enduml")
	_, err := io.WriteString(writer, builder.String())
	return err
}
