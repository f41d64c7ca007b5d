package depgraph

import (
	"container/heap"
	"sort"

	"github.com/aretw0/actdata/pkg/domain"
)

// Function is one live binding: the Parameter hosting it, the binding itself,
// and its position in the stable insertion order.
type Function struct {
	Host    domain.GID
	Binding domain.FunctionBinding
	Order   int
}

// Graph is an immutable, acyclic dependency graph over Tree Functions.
type Graph struct {
	funcs     []Function
	index     map[domain.GID]int
	consumers map[domain.GID][]int
	producers map[domain.GID][]int
	succ      [][]int
	pred      [][]int
}

// Build derives the graph from funcs and verifies it is acyclic.
// The input order does not matter: functions are ranked by Order, then Host.
func Build(funcs []Function) (*Graph, error) {
	sorted := make([]Function, len(funcs))
	copy(sorted, funcs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].Host.Less(sorted[j].Host)
	})

	g := &Graph{
		funcs:     sorted,
		index:     make(map[domain.GID]int, len(sorted)),
		consumers: make(map[domain.GID][]int),
		producers: make(map[domain.GID][]int),
		succ:      make([][]int, len(sorted)),
		pred:      make([][]int, len(sorted)),
	}

	for i, f := range sorted {
		g.index[f.Host] = i
		for _, in := range uniqueGIDs(f.Binding.Inputs) {
			g.consumers[in] = append(g.consumers[in], i)
		}
		for _, out := range uniqueGIDs(f.Binding.Outputs) {
			g.producers[out] = append(g.producers[out], i)
		}
	}

	for i, f := range sorted {
		seen := make(map[int]bool)
		for _, out := range f.Binding.Outputs {
			for _, j := range g.consumers[out] {
				if seen[j] {
					continue
				}
				seen[j] = true
				g.succ[i] = append(g.succ[i], j)
				g.pred[j] = append(g.pred[j], i)
			}
		}
		sort.Ints(g.succ[i])
	}
	for j := range g.pred {
		sort.Ints(g.pred[j])
	}

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

// detectCycles uses DFS to detect cycles in the graph. Self loops count.
func (g *Graph) detectCycles() error {
	visited := make([]bool, len(g.funcs))
	recStack := make([]bool, len(g.funcs))
	path := make([]int, 0)

	var dfs func(node int) error
	dfs = func(node int) error {
		visited[node] = true
		recStack[node] = true
		path = append(path, node)

		for _, dep := range g.succ[node] {
			if !visited[dep] {
				if err := dfs(dep); err != nil {
					return err
				}
			} else if recStack[dep] {
				// Found cycle - find where it starts
				cycleStart := 0
				for i, n := range path {
					if n == dep {
						cycleStart = i
						break
					}
				}
				cycle := make([]domain.GID, 0, len(path)-cycleStart+1)
				for _, n := range path[cycleStart:] {
					cycle = append(cycle, g.funcs[n].Host)
				}
				cycle = append(cycle, g.funcs[dep].Host)
				return &domain.CycleError{Path: cycle}
			}
		}

		path = path[:len(path)-1]
		recStack[node] = false
		return nil
	}

	for i := range g.funcs {
		if !visited[i] {
			if err := dfs(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// Len returns the number of functions.
func (g *Graph) Len() int {
	return len(g.funcs)
}

// Functions returns every function in insertion order.
func (g *Graph) Functions() []Function {
	out := make([]Function, len(g.funcs))
	copy(out, g.funcs)
	return out
}

// Function returns the function hosted at host.
func (g *Graph) Function(host domain.GID) (Function, bool) {
	i, ok := g.index[host]
	if !ok {
		return Function{}, false
	}
	return g.funcs[i], true
}

// Consumers returns the functions reading gid.
func (g *Graph) Consumers(gid domain.GID) []Function {
	return g.pick(g.consumers[gid])
}

// Producers returns the functions writing gid.
func (g *Graph) Producers(gid domain.GID) []Function {
	return g.pick(g.producers[gid])
}

// Successors returns the hosts of functions directly fed by host.
func (g *Graph) Successors(host domain.GID) []domain.GID {
	i, ok := g.index[host]
	if !ok {
		return nil
	}
	return g.hosts(g.succ[i])
}

// Edges returns every (producer, consumer) pair in insertion order.
func (g *Graph) Edges() [][2]domain.GID {
	var out [][2]domain.GID
	for i, next := range g.succ {
		for _, j := range next {
			out = append(out, [2]domain.GID{g.funcs[i].Host, g.funcs[j].Host})
		}
	}
	return out
}

// Impacted returns the forward closure of the functions affected by touched, in insertion order.
// A function is affected when one of its inputs, or its host Parameter, was touched.
func (g *Graph) Impacted(touched []domain.GID) []domain.GID {
	in := make([]bool, len(g.funcs))
	var stack []int
	push := func(i int) {
		if !in[i] {
			in[i] = true
			stack = append(stack, i)
		}
	}

	for _, gid := range touched {
		for _, i := range g.consumers[gid] {
			push(i)
		}
		if i, ok := g.index[gid]; ok {
			push(i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, j := range g.succ[i] {
			push(j)
		}
	}

	var out []int
	for i, ok := range in {
		if ok {
			out = append(out, i)
		}
	}
	return g.hosts(out)
}

// Downstream returns the hosts reachable from host (excluding host), in insertion order.
func (g *Graph) Downstream(host domain.GID) []domain.GID {
	start, ok := g.index[host]
	if !ok {
		return nil
	}
	seen := make([]bool, len(g.funcs))
	stack := []int{start}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, j := range g.succ[i] {
			if !seen[j] {
				seen[j] = true
				stack = append(stack, j)
			}
		}
	}
	var out []int
	for i, ok := range seen {
		if ok && i != start {
			out = append(out, i)
		}
	}
	return g.hosts(out)
}

// Schedule orders the given functions topologically over the subgraph they induce.
// Among ready functions, High priority runs first, then insertion order.
// Hosts unknown to the graph are ignored.
func (g *Graph) Schedule(hosts []domain.GID) []Function {
	member := make(map[int]bool, len(hosts))
	for _, h := range hosts {
		if i, ok := g.index[h]; ok {
			member[i] = true
		}
	}

	indegree := make(map[int]int, len(member))
	for i := range member {
		for _, p := range g.pred[i] {
			if member[p] {
				indegree[i]++
			}
		}
	}

	ready := &readyQueue{g: g}
	for i := range member {
		if indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]Function, 0, len(member))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		out = append(out, g.funcs[i])
		for _, j := range g.succ[i] {
			if !member[j] {
				continue
			}
			indegree[j]--
			if indegree[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	return out
}

func (g *Graph) pick(idx []int) []Function {
	out := make([]Function, len(idx))
	for k, i := range idx {
		out[k] = g.funcs[i]
	}
	return out
}

func (g *Graph) hosts(idx []int) []domain.GID {
	if len(idx) == 0 {
		return nil
	}
	out := make([]domain.GID, len(idx))
	for k, i := range idx {
		out[k] = g.funcs[i].Host
	}
	return out
}

func uniqueGIDs(ids []domain.GID) []domain.GID {
	seen := make(map[domain.GID]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// readyQueue is a heap of function indexes: High priority first, then lowest index.
type readyQueue struct {
	g     *Graph
	items []int
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(a, b int) bool {
	fa, fb := q.g.funcs[q.items[a]], q.g.funcs[q.items[b]]
	if fa.Binding.Priority != fb.Binding.Priority {
		return fa.Binding.Priority > fb.Binding.Priority
	}
	return q.items[a] < q.items[b]
}

func (q *readyQueue) Swap(a, b int) { q.items[a], q.items[b] = q.items[b], q.items[a] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(int)) }

func (q *readyQueue) Pop() any {
	n := len(q.items)
	x := q.items[n-1]
	q.items = q.items[:n-1]
	return x
}
