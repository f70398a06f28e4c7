package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Image formats accepted by RenderImage.
const (
	ImagePNG = "png"
	ImageSVG = "svg"
)

var kindShapes = map[NodeKind]cgraph.Shape{
	NodeKindCondition: cgraph.DiamondShape,
	NodeKindAgent:     cgraph.HexagonShape,
	NodeKindDelay:     cgraph.EllipseShape,
	NodeKindWebhook:   cgraph.ParallelogramShape,
	NodeKindStart:     cgraph.CircleShape,
	NodeKindEnd:       cgraph.DoubleCircleShape,
}

type gvStyle struct{ fill, font string }

var statusColors = map[string]gvStyle{
	StatusCompleted: {"#2d6a2d", "white"},
	StatusFailed:    {"#8b1a1a", "white"},
	StatusRunning:   {"#1a5276", "white"},
	StatusCancelled: {"#b7791a", "white"},
	StatusPending:   {"#d3d3d3", "black"},
	StatusSkipped:   {"#e8e8e8", "#888888"},
}

// RenderImage lays the model out with graphviz dot and returns PNG or SVG bytes.
func RenderImage(model *DiagramModel, format string) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case "", ImagePNG:
		gvFormat = graphviz.PNG
	case ImageSVG:
		gvFormat = graphviz.SVG
	default:
		return nil, fmt.Errorf("diagram: unsupported image format %q", format)
	}

	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()
	graph.SetRankDir(cgraph.TBRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}

	byID := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, n := range model.Nodes {
		gn, err := graph.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", n.ID, err)
		}
		styleNode(gn, n)
		byID[n.ID] = gn
	}

	for i, e := range model.Edges {
		from, to := byID[e.From], byID[e.To]
		if from == nil || to == nil {
			continue
		}
		ge, err := graph.CreateEdgeByName("e"+strconv.Itoa(i), from, to)
		if err != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", e.From, e.To, err)
		}
		switch e.Label {
		case "true":
			ge.SetLabel("true")
			ge.SetColor("#2d6a2d")
			ge.SetPenWidth(2)
		case "false":
			ge.SetLabel("false")
			ge.SetColor("#8b1a1a")
			ge.SetStyle(cgraph.DashedEdgeStyle)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", gvFormat, err)
	}
	return buf.Bytes(), nil
}

func styleNode(gn *cgraph.Node, n *Node) {
	shape, ok := kindShapes[n.Kind]
	if !ok {
		shape = cgraph.BoxShape
	}
	gn.SetShape(shape)

	if n.Virtual() {
		gn.SetLabel(n.Name)
		gn.SetWidth(0.6)
		gn.SetHeight(0.6)
		return
	}
	label := fmt.Sprintf("%d. %s\n(%s)", n.Position, n.Name, n.StepType)
	gn.SetLabel(label)

	if n.Status == nil {
		return
	}
	style := statusColors[n.Status.Status]
	gn.SetStyle(cgraph.FilledNodeStyle)
	gn.SetFillColor(style.fill)
	gn.SetFontColor(style.font)
	if n.Status.Status == StatusSkipped {
		gn.SetStyle(cgraph.DashedNodeStyle)
	}
	if n.Status.Error != "" {
		gn.SetTooltip(n.Status.Error)
	}
}
