package graph

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Model is the YAML source model a Graph is built from. It stands in for the
// parser front end: each class lists its methods and their statement trees.
type Model struct {
	Classes []ClassDef `yaml:"classes"`
}

// ClassDef describes one type.
type ClassDef struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	// Lazy types are materialized only when a call needs them.
	Lazy    bool        `yaml:"lazy"`
	Methods []MethodDef `yaml:"methods"`
}

// MethodDef describes one method and its body.
type MethodDef struct {
	Name        string    `yaml:"name"`
	Line        int       `yaml:"line"`
	Annotations []string  `yaml:"annotations"`
	Modifiers   []string  `yaml:"modifiers"`
	Parameters  []string  `yaml:"parameters"`
	Body        []StmtDef `yaml:"body"`
}

// StmtDef is a discriminated union: exactly one statement field is set.
type StmtDef struct {
	Line    int         `yaml:"line"`
	Declare *DeclareDef `yaml:"declare,omitempty"`
	Assign  *DeclareDef `yaml:"assign,omitempty"`
	Call    *CallDef    `yaml:"call,omitempty"`
	SOQL    string      `yaml:"soql,omitempty"`
	SOSL    string      `yaml:"sosl,omitempty"`
	DML     string      `yaml:"dml,omitempty"` // insert|update|delete|upsert|undelete|merge
	If      *IfDef      `yaml:"if,omitempty"`
	For     *LoopDef    `yaml:"for,omitempty"`
	ForEach *LoopDef    `yaml:"foreach,omitempty"`
	While   *LoopDef    `yaml:"while,omitempty"`
	Do      *LoopDef    `yaml:"do,omitempty"`
	Return  *ExprDef    `yaml:"return,omitempty"` // empty expression for a void return
}

// DeclareDef declares or assigns a variable.
type DeclareDef struct {
	Name  string   `yaml:"name"`
	Type  string   `yaml:"type"`
	Value *ExprDef `yaml:"value,omitempty"`
}

// ExprDef is a discriminated union of expressions. The null literal is
// written nil: true, since a bare null key decodes as the YAML null scalar.
type ExprDef struct {
	Literal any      `yaml:"literal,omitempty"`
	Nil     bool     `yaml:"nil,omitempty"`
	Var     string   `yaml:"var,omitempty"`
	Call    *CallDef `yaml:"call,omitempty"`
	SOQL    string   `yaml:"soql,omitempty"`
}

// CallDef is a method invocation. Targets name the methods ("Type.method") the
// call resolves to; an empty list means the target is unknown or external.
type CallDef struct {
	Name    string    `yaml:"name"`
	Targets []string  `yaml:"targets"`
	Args    []ExprDef `yaml:"args"`
}

// IfDef is an if/else statement.
type IfDef struct {
	Condition string    `yaml:"condition"`
	Then      []StmtDef `yaml:"then"`
	Else      []StmtDef `yaml:"else"`
}

// LoopDef is any loop statement.
type LoopDef struct {
	Condition string    `yaml:"condition"`
	Variable  string    `yaml:"variable"`
	Body      []StmtDef `yaml:"body"`
}

// LoadModel reads a YAML source model from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return ParseModel(data)
}

// ParseModel decodes a YAML source model.
func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return &m, nil
}

// Validate checks the model for:
//   - duplicate class names and duplicate method names within a class
//   - statements and expressions with zero or several variants set
//   - required names
func (m *Model) Validate() error {
	var errs []string
	classes := make(map[string]struct{}, len(m.Classes))
	for i, c := range m.Classes {
		if c.Name == "" {
			errs = append(errs, fmt.Sprintf("classes[%d]: name is required", i))
			continue
		}
		if _, dup := classes[c.Name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate class %q", c.Name))
		}
		classes[c.Name] = struct{}{}

		methods := make(map[string]struct{}, len(c.Methods))
		for j, md := range c.Methods {
			if md.Name == "" {
				errs = append(errs, fmt.Sprintf("class %s: methods[%d]: name is required", c.Name, j))
				continue
			}
			if _, dup := methods[md.Name]; dup {
				errs = append(errs, fmt.Sprintf("class %s: duplicate method %q", c.Name, md.Name))
			}
			methods[md.Name] = struct{}{}
			validateStmts(md.Body, c.Name+"."+md.Name, &errs)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidModel, strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateStmts(stmts []StmtDef, loc string, errs *[]string) {
	for i, s := range stmts {
		at := fmt.Sprintf("%s.body[%d]", loc, i)
		if n := s.variants(); n != 1 {
			*errs = append(*errs, fmt.Sprintf("%s: exactly one statement kind must be set, got %d", at, n))
			continue
		}
		switch {
		case s.Declare != nil:
			validateDeclare(s.Declare, at, errs)
		case s.Assign != nil:
			validateDeclare(s.Assign, at, errs)
		case s.Call != nil:
			validateCall(s.Call, at, errs)
		case s.DML != "":
			if _, ok := dmlKinds[strings.ToLower(s.DML)]; !ok {
				*errs = append(*errs, fmt.Sprintf("%s: unknown dml operation %q", at, s.DML))
			}
		case s.If != nil:
			if s.If.Condition == "" {
				*errs = append(*errs, fmt.Sprintf("%s: if condition is required", at))
			}
			validateStmts(s.If.Then, at+".then", errs)
			validateStmts(s.If.Else, at+".else", errs)
		case s.For != nil, s.ForEach != nil, s.While != nil, s.Do != nil:
			validateStmts(s.loop().Body, at, errs)
		case s.Return != nil:
			if !s.Return.empty() {
				validateExpr(s.Return, at, errs)
			}
		}
	}
}

func validateDeclare(d *DeclareDef, at string, errs *[]string) {
	if d.Name == "" {
		*errs = append(*errs, fmt.Sprintf("%s: variable name is required", at))
	}
	if d.Value != nil {
		validateExpr(d.Value, at, errs)
	}
}

func validateCall(c *CallDef, at string, errs *[]string) {
	if c.Name == "" {
		*errs = append(*errs, fmt.Sprintf("%s: call name is required", at))
	}
	for i := range c.Args {
		validateExpr(&c.Args[i], fmt.Sprintf("%s.args[%d]", at, i), errs)
	}
}

func validateExpr(e *ExprDef, at string, errs *[]string) {
	n := 0
	if e.Literal != nil {
		n++
	}
	if e.Nil {
		n++
	}
	if e.Var != "" {
		n++
	}
	if e.Call != nil {
		n++
		validateCall(e.Call, at, errs)
	}
	if e.SOQL != "" {
		n++
	}
	if n != 1 {
		*errs = append(*errs, fmt.Sprintf("%s: exactly one expression kind must be set, got %d", at, n))
	}
}

func (e *ExprDef) empty() bool {
	return e.Literal == nil && !e.Nil && e.Var == "" && e.Call == nil && e.SOQL == ""
}

func (s *StmtDef) variants() int {
	n := 0
	for _, set := range []bool{
		s.Declare != nil, s.Assign != nil, s.Call != nil, s.SOQL != "", s.SOSL != "",
		s.DML != "", s.If != nil, s.For != nil, s.ForEach != nil, s.While != nil,
		s.Do != nil, s.Return != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

func (s *StmtDef) loop() *LoopDef {
	switch {
	case s.For != nil:
		return s.For
	case s.ForEach != nil:
		return s.ForEach
	case s.While != nil:
		return s.While
	default:
		return s.Do
	}
}

var dmlKinds = map[string]Kind{
	"insert":   KindDmlInsert,
	"update":   KindDmlUpdate,
	"delete":   KindDmlDelete,
	"upsert":   KindDmlUpsert,
	"undelete": KindDmlUndelete,
	"merge":    KindDmlMerge,
}
