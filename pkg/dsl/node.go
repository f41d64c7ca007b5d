package dsl

import "github.com/aretw0/actdata/pkg/domain"

// Port names a Parameter of a Node under construction.
type Port struct {
	node  *NodeBuilder
	param string
}

// Variable binds an expression variable to a Port.
type Variable struct {
	Name string
	From Port
}

// Var is shorthand for Variable{name, from}.
func Var(name string, from Port) Variable {
	return Variable{Name: name, From: from}
}

type assignment struct {
	param string
	value domain.Value
}

type binding struct {
	host     string
	function domain.FunctionID
	inputs   []Port
	outputs  []Port
	priority domain.Priority
}

type evaluation struct {
	host       string
	target     string
	expression string
	vars       []Variable
}

type reference struct {
	param   string
	targets []*NodeBuilder
	list    bool
}

// NodeBuilder collects the content of one Node.
type NodeBuilder struct {
	typ      domain.TypeID
	ordinal  int
	name     string
	values   []assignment
	refs     []reference
	children []*NodeBuilder
	bindings []binding
	evals    []evaluation
}

// ID returns the NodeID the Node receives in the built document.
func (n *NodeBuilder) ID() domain.NodeID {
	return domain.NodeID{Type: n.typ, Ordinal: n.ordinal}
}

// P returns the Port of the named Parameter.
func (n *NodeBuilder) P(param string) Port {
	return Port{node: n, param: param}
}

// Name sets the Node's display name.
func (n *NodeBuilder) Name(name string) *NodeBuilder {
	n.name = name
	return n
}

// Set assigns a value.
func (n *NodeBuilder) Set(param string, v domain.Value) *NodeBuilder {
	n.values = append(n.values, assignment{param: param, value: v})
	return n
}

// Ref points a reference Parameter at another Node.
func (n *NodeBuilder) Ref(param string, target *NodeBuilder) *NodeBuilder {
	n.refs = append(n.refs, reference{param: param, targets: []*NodeBuilder{target}})
	return n
}

// Refs points a reference_list Parameter at other Nodes.
func (n *NodeBuilder) Refs(param string, targets ...*NodeBuilder) *NodeBuilder {
	n.refs = append(n.refs, reference{param: param, targets: targets, list: true})
	return n
}

// Child appends child links.
func (n *NodeBuilder) Child(children ...*NodeBuilder) *NodeBuilder {
	n.children = append(n.children, children...)
	return n
}

// Bind stores a Tree Function binding in the host Parameter.
func (n *NodeBuilder) Bind(host string, fn domain.FunctionID, inputs, outputs []Port) *NodeBuilder {
	n.bindings = append(n.bindings, binding{host: host, function: fn, inputs: inputs, outputs: outputs})
	return n
}

// BindHigh is Bind with High priority.
func (n *NodeBuilder) BindHigh(host string, fn domain.FunctionID, inputs, outputs []Port) *NodeBuilder {
	n.bindings = append(n.bindings, binding{
		host: host, function: fn, inputs: inputs, outputs: outputs, priority: domain.PriorityHigh,
	})
	return n
}

// Expr records an expression on the target Parameter and binds the expression function in
// host so that target follows its variables.
func (n *NodeBuilder) Expr(host, target, expression string, vars ...Variable) *NodeBuilder {
	n.evals = append(n.evals, evaluation{host: host, target: target, expression: expression, vars: vars})
	return n
}
