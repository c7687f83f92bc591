package graph

import (
	"fmt"
	"strings"
)

// Build constructs a Graph from a validated source model.
// Lazy classes are registered as deferred types and materialized by
// LoadSubgraph the first time a call needs them.
func Build(m *Model) (*Graph, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	g := NewGraph()
	for _, c := range m.Classes {
		if c.Lazy {
			c := c
			g.Defer(c.Name, func(g *Graph) error { return buildClass(g, c) })
			continue
		}
		if err := buildClass(g, c); err != nil {
			return nil, fmt.Errorf("class %s: %w", c.Name, err)
		}
	}
	g.linkPending()
	return g, nil
}

type classBuilder struct {
	g     *Graph
	class string
	file  string
}

func buildClass(g *Graph, c ClassDef) error {
	b := &classBuilder{g: g, class: c.Name, file: c.File}
	for _, md := range c.Methods {
		props := map[string]string{}
		if len(md.Annotations) > 0 {
			props[PropAnnotations] = strings.Join(md.Annotations, ",")
		}
		if len(md.Modifiers) > 0 {
			props[PropModifiers] = strings.Join(md.Modifiers, ",")
		}
		if len(md.Parameters) > 0 {
			props[PropParameters] = strings.Join(md.Parameters, ",")
		}
		mid, err := b.add(&Vertex{Kind: KindMethod, Name: md.Name, BeginLine: md.Line, Properties: props})
		if err != nil {
			return fmt.Errorf("method %s: %w", md.Name, err)
		}
		if err := b.block(mid, md.Line, md.Body); err != nil {
			return fmt.Errorf("method %s: %w", md.Name, err)
		}
	}
	return nil
}

func (b *classBuilder) add(v *Vertex) (VertexID, error) {
	v.DefiningType = b.class
	v.FileName = b.file
	if v.EndLine == 0 {
		v.EndLine = v.BeginLine
	}
	return b.g.AddVertex(v)
}

// child adds v and links it as the next child of parent.
func (b *classBuilder) child(parent VertexID, v *Vertex) (VertexID, error) {
	id, err := b.add(v)
	if err != nil {
		return 0, err
	}
	b.g.AddChild(parent, id)
	return id, nil
}

func (b *classBuilder) block(parent VertexID, line int, stmts []StmtDef) error {
	blk, err := b.child(parent, &Vertex{Kind: KindBlock, BeginLine: line})
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := b.stmt(blk, s); err != nil {
			return err
		}
	}
	return nil
}

func (b *classBuilder) stmt(parent VertexID, s StmtDef) error {
	switch {
	case s.Declare != nil, s.Assign != nil:
		kind, d := KindVariableDeclaration, s.Declare
		if s.Assign != nil {
			kind, d = KindAssignment, s.Assign
		}
		var props map[string]string
		if d.Type != "" {
			props = map[string]string{"type": d.Type}
		}
		id, err := b.child(parent, &Vertex{Kind: kind, Name: d.Name, BeginLine: s.Line, Properties: props})
		if err != nil {
			return err
		}
		if d.Value != nil {
			return b.expr(id, s.Line, d.Value)
		}
		return nil

	case s.Call != nil:
		id, err := b.child(parent, &Vertex{Kind: KindExpressionStatement, BeginLine: s.Line})
		if err != nil {
			return err
		}
		return b.call(id, s.Line, s.Call)

	case s.SOQL != "", s.SOSL != "":
		id, err := b.child(parent, &Vertex{Kind: KindExpressionStatement, BeginLine: s.Line})
		if err != nil {
			return err
		}
		kind, q := KindSoql, s.SOQL
		if s.SOSL != "" {
			kind, q = KindSosl, s.SOSL
		}
		_, err = b.child(id, &Vertex{Kind: kind, BeginLine: s.Line, Properties: map[string]string{PropQuery: q}})
		return err

	case s.DML != "":
		_, err := b.child(parent, &Vertex{Kind: dmlKinds[strings.ToLower(s.DML)], BeginLine: s.Line})
		return err

	case s.If != nil:
		id, err := b.child(parent, &Vertex{Kind: KindIfElse, BeginLine: s.Line})
		if err != nil {
			return err
		}
		cond := &Vertex{Kind: KindCondition, BeginLine: s.Line, Properties: map[string]string{PropExpression: s.If.Condition}}
		if _, err := b.child(id, cond); err != nil {
			return err
		}
		if err := b.block(id, s.Line, s.If.Then); err != nil {
			return err
		}
		if len(s.If.Else) > 0 {
			return b.block(id, s.Line, s.If.Else)
		}
		return nil

	case s.For != nil, s.ForEach != nil, s.While != nil, s.Do != nil:
		kind := KindForLoop
		switch {
		case s.ForEach != nil:
			kind = KindForEach
		case s.While != nil:
			kind = KindWhileLoop
		case s.Do != nil:
			kind = KindDoLoop
		}
		l := s.loop()
		var props map[string]string
		if l.Variable != "" {
			props = map[string]string{PropVariable: l.Variable}
		}
		id, err := b.child(parent, &Vertex{Kind: kind, BeginLine: s.Line, Properties: props})
		if err != nil {
			return err
		}
		if l.Condition != "" {
			cond := &Vertex{Kind: KindCondition, BeginLine: s.Line, Properties: map[string]string{PropExpression: l.Condition}}
			if _, err := b.child(id, cond); err != nil {
				return err
			}
		}
		return b.block(id, s.Line, l.Body)

	case s.Return != nil:
		id, err := b.child(parent, &Vertex{Kind: KindReturn, BeginLine: s.Line})
		if err != nil || s.Return.empty() {
			return err
		}
		return b.expr(id, s.Line, s.Return)
	}
	return fmt.Errorf("line %d: empty statement", s.Line)
}

func (b *classBuilder) expr(parent VertexID, line int, e *ExprDef) error {
	switch {
	case e.Call != nil:
		return b.call(parent, line, e.Call)
	case e.SOQL != "":
		_, err := b.child(parent, &Vertex{Kind: KindSoql, BeginLine: line, Properties: map[string]string{PropQuery: e.SOQL}})
		return err
	case e.Var != "":
		_, err := b.child(parent, &Vertex{Kind: KindVariable, Name: e.Var, BeginLine: line})
		return err
	case e.Nil:
		_, err := b.child(parent, &Vertex{Kind: KindLiteral, BeginLine: line, Properties: map[string]string{PropValueType: "null"}})
		return err
	default:
		_, err := b.child(parent, &Vertex{Kind: KindLiteral, BeginLine: line, Properties: literalProps(e.Literal)})
		return err
	}
}

func (b *classBuilder) call(parent VertexID, line int, c *CallDef) error {
	var props map[string]string
	if len(c.Targets) > 0 {
		props = map[string]string{PropTargets: strings.Join(c.Targets, ",")}
	}
	id, err := b.child(parent, &Vertex{Kind: KindMethodCall, Name: c.Name, BeginLine: line, Properties: props})
	if err != nil {
		return err
	}
	for i := range c.Args {
		if err := b.expr(id, line, &c.Args[i]); err != nil {
			return err
		}
	}
	for _, t := range c.Targets {
		b.g.AddPendingCall(id, t)
	}
	return nil
}

func literalProps(v any) map[string]string {
	switch x := v.(type) {
	case string:
		return map[string]string{PropValue: x, PropValueType: "string"}
	case bool:
		return map[string]string{PropValue: fmt.Sprint(x), PropValueType: "boolean"}
	case int, int64, float64, float32, uint64:
		return map[string]string{PropValue: fmt.Sprint(x), PropValueType: "number"}
	default:
		return map[string]string{PropValue: fmt.Sprint(x), PropValueType: "string"}
	}
}
