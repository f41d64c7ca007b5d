package document_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/actdata/pkg/document"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/ports"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pGroup domain.ParamIndex = iota
	pA
	pB
	pC
	pFn
	pRef
	pRefs
	pExpr
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterType(registry.NodeType{
		ID: "Calc",
		Params: []registry.ParamDecl{
			{Index: pGroup, Name: "inputs", Kind: domain.KindGroup},
			{Index: pA, Name: "a", Kind: domain.KindReal},
			{Index: pB, Name: "b", Kind: domain.KindReal},
			{Index: pC, Name: "c", Kind: domain.KindReal},
			{Index: pFn, Name: "fn", Kind: domain.KindTreeFunction},
			{Index: pRef, Name: "ref", Kind: domain.KindReference},
			{Index: pRefs, Name: "refs", Kind: domain.KindReferenceList},
			{Index: pExpr, Name: "expr", Kind: domain.KindReal, Expressible: true},
		},
	}))
	reg.RegisterFunction("copy", registry.TreeFunctionFunc(func(ctx context.Context, fc registry.FunctionContext) error {
		return nil
	}))
	return reg
}

// newDoc returns a document with n Calc nodes created in a committed transaction.
func newDoc(t *testing.T, n int, opts ...document.Option) *document.Document {
	t.Helper()
	doc := document.New("doc-1", testRegistry(t), opts...)
	require.NoError(t, doc.Open("setup"))
	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := part.AddNode()
		require.NoError(t, err)
	}
	_, err = doc.Commit(context.Background())
	require.NoError(t, err)
	return doc
}

func param(t *testing.T, doc *document.Document, ordinal int, idx domain.ParamIndex) *document.Parameter {
	t.Helper()
	p, err := doc.Parameter(domain.NodeID{Type: "Calc", Ordinal: ordinal}.Param(idx))
	require.NoError(t, err)
	return p
}

func calc(ordinal int) domain.NodeID {
	return domain.NodeID{Type: "Calc", Ordinal: ordinal}
}

func TestParameter_RequiresTransaction(t *testing.T) {
	doc := newDoc(t, 1)
	p := param(t, doc, 1, pA)

	assert.ErrorIs(t, p.SetValue(domain.RealValue(1)), domain.ErrNoActiveTransaction)
	assert.ErrorIs(t, p.Touch(), domain.ErrNoActiveTransaction)

	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	_, err = part.AddNode()
	assert.ErrorIs(t, err, domain.ErrNoActiveTransaction)
}

func TestParameter_SetAndGet(t *testing.T) {
	doc := newDoc(t, 1)
	require.NoError(t, doc.Open("edit"))

	a := param(t, doc, 1, pA)
	_, err := a.GetValue()
	assert.ErrorIs(t, err, domain.ErrNotWellFormed, "never set is not the zero value")
	assert.False(t, a.IsWellFormed())

	require.NoError(t, a.SetValue(domain.RealValue(0)))
	v, err := a.GetValue()
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.Real)
	assert.True(t, a.IsWellFormed())
	assert.Equal(t, domain.Touched, a.State())

	t.Run("Type mismatch", func(t *testing.T) {
		err := a.SetValue(domain.IntValue(1))
		assert.ErrorIs(t, err, domain.ErrTypeMismatch)

		var perr *domain.ParameterError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, calc(1).Param(pA), perr.GID)
	})

	t.Run("Group holds no value", func(t *testing.T) {
		g := param(t, doc, 1, pGroup)
		assert.ErrorIs(t, g.SetValue(domain.RealValue(1)), domain.ErrTypeMismatch)
		_, err := g.GetValue()
		assert.ErrorIs(t, err, domain.ErrTypeMismatch)
		assert.True(t, g.IsWellFormed())
	})

	t.Run("Unknown parameter index", func(t *testing.T) {
		n, err := doc.Node(calc(1))
		require.NoError(t, err)
		_, err = n.Parameter(42)
		assert.ErrorIs(t, err, domain.ErrUnknownParameterID)
		_, err = n.ParameterByName("missing")
		assert.ErrorIs(t, err, domain.ErrUnknownParameterID)
	})
}

func TestParameter_SilentWritesDoNotTouch(t *testing.T) {
	doc := newDoc(t, 1)
	require.NoError(t, doc.Open("silent"))

	b := param(t, doc, 1, pB)
	require.NoError(t, b.SetValueSilently(domain.RealValue(3)))
	assert.Equal(t, domain.Silent, b.State())
	assert.Empty(t, doc.Transaction().Modifications().Touched())

	require.NoError(t, b.Touch())
	assert.Equal(t, domain.Touched, b.State())
	assert.Equal(t, []domain.GID{calc(1).Param(pB)}, doc.Transaction().Modifications().Touched())

	require.NoError(t, doc.Abort())
	assert.Equal(t, domain.Pristine, b.State())
	_, err := b.GetValue()
	assert.ErrorIs(t, err, domain.ErrNotWellFormed, "silent writes are rolled back by abort")
}

func TestParameter_Evaluation(t *testing.T) {
	doc := newDoc(t, 1)
	require.NoError(t, doc.Open("expr"))

	_, err := param(t, doc, 1, pA).Evaluation()
	assert.ErrorIs(t, err, domain.ErrTypeMismatch)
	assert.ErrorIs(t, param(t, doc, 1, pA).SetEvaluation("1"), domain.ErrTypeMismatch)

	e := param(t, doc, 1, pExpr)
	require.NoError(t, e.SetEvaluation("a * 2", domain.Variable{Name: "a", Source: calc(1).Param(pA)}))
	got, err := e.Evaluation()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a * 2", got.Expression)
	assert.Equal(t, domain.Touched, e.State())
}

func TestPartition_OrdinalsAreNeverReused(t *testing.T) {
	doc := newDoc(t, 3)
	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeID("Calc"), part.GetNodeType())

	require.NoError(t, doc.Open("remove"))
	require.NoError(t, part.RemoveNode(3))
	n, err := part.AddNode()
	require.NoError(t, err)
	assert.Equal(t, 4, n.ID().Ordinal)

	_, err = part.GetNode(3)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	_, err = part.GetNode(0)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
	assert.Equal(t, 3, part.Len())

	var ordinals []int
	for _, n := range part.Nodes() {
		ordinals = append(ordinals, n.ID().Ordinal)
	}
	assert.Equal(t, []int{1, 2, 4}, ordinals)
}

func TestPartition_RemoveNodeRefusesDanglingReferences(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, doc *document.Document)
	}{
		{"Reference", func(t *testing.T, doc *document.Document) {
			require.NoError(t, param(t, doc, 1, pRef).SetValue(domain.ReferenceValue(calc(2))))
		}},
		{"Reference List", func(t *testing.T, doc *document.Document) {
			require.NoError(t, param(t, doc, 1, pRefs).SetValue(domain.ReferenceListValue(calc(3), calc(2))))
		}},
		{"Child Link", func(t *testing.T, doc *document.Document) {
			n, err := doc.Node(calc(1))
			require.NoError(t, err)
			require.NoError(t, n.AddChild(calc(2)))
		}},
		{"Function Binding", func(t *testing.T, doc *document.Document) {
			require.NoError(t, param(t, doc, 1, pFn).SetValue(domain.FunctionValue(domain.FunctionBinding{
				Function: "copy",
				Inputs:   []domain.GID{calc(2).Param(pA)},
				Outputs:  []domain.GID{calc(1).Param(pB)},
			})))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := newDoc(t, 3)
			require.NoError(t, doc.Open("refs"))
			tt.setup(t, doc)
			before := doc.Snapshot()

			part, err := doc.Partition("Calc")
			require.NoError(t, err)
			err = part.RemoveNode(2)
			assert.ErrorIs(t, err, domain.ErrDanglingReference)

			ports.AssertSnapshotsEqual(t, before, doc.Snapshot())
			_, err = part.GetNode(2)
			assert.NoError(t, err)
		})
	}

	t.Run("Self reference does not block removal", func(t *testing.T) {
		doc := newDoc(t, 2)
		require.NoError(t, doc.Open("self"))
		require.NoError(t, param(t, doc, 2, pRef).SetValue(domain.ReferenceValue(calc(2))))
		part, err := doc.Partition("Calc")
		require.NoError(t, err)
		assert.NoError(t, part.RemoveNode(2))
	})
}

func TestParameter_IsWellFormedReferences(t *testing.T) {
	doc := newDoc(t, 2)
	require.NoError(t, doc.Open("refs"))

	ref := param(t, doc, 1, pRef)
	require.NoError(t, ref.SetValue(domain.ReferenceValue(calc(2))))
	assert.True(t, ref.IsWellFormed())

	require.NoError(t, ref.SetValue(domain.ReferenceValue(calc(9))))
	assert.False(t, ref.IsWellFormed(), "target does not exist")

	fn := param(t, doc, 1, pFn)
	require.NoError(t, fn.SetValue(domain.FunctionValue(domain.FunctionBinding{
		Function: "unregistered",
		Inputs:   []domain.GID{calc(1).Param(pA)},
	})))
	assert.False(t, fn.IsWellFormed())
	assert.ErrorIs(t, doc.Validate(), domain.ErrNotWellFormed)
}

func TestBinding_CycleRejectedBeforeChange(t *testing.T) {
	doc := newDoc(t, 2)
	require.NoError(t, doc.Open("bind"))

	require.NoError(t, param(t, doc, 1, pFn).SetValue(domain.FunctionValue(domain.FunctionBinding{
		Function: "copy",
		Inputs:   []domain.GID{calc(1).Param(pA)},
		Outputs:  []domain.GID{calc(2).Param(pA)},
	})))

	second := param(t, doc, 2, pFn)
	err := second.SetValue(domain.FunctionValue(domain.FunctionBinding{
		Function: "copy",
		Inputs:   []domain.GID{calc(2).Param(pA)},
		Outputs:  []domain.GID{calc(1).Param(pA)},
	}))
	require.ErrorIs(t, err, domain.ErrCyclicDependency)

	_, err = second.GetValue()
	assert.ErrorIs(t, err, domain.ErrNotWellFormed, "the rejected binding must not be stored")
	assert.Equal(t, domain.Pristine, second.State())

	g, err := doc.Graph()
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestNode_Children(t *testing.T) {
	doc := newDoc(t, 3)
	require.NoError(t, doc.Open("children"))

	root, err := doc.Node(calc(1))
	require.NoError(t, err)
	require.NoError(t, root.SetName("root"))
	require.NoError(t, root.AddChild(calc(3)))
	require.NoError(t, root.AddChild(calc(2)))
	assert.Error(t, root.AddChild(calc(1)))
	assert.ErrorIs(t, root.AddChild(calc(7)), domain.ErrOutOfRange)

	first, err := root.Child(1)
	require.NoError(t, err)
	assert.Equal(t, calc(3), first.ID())
	_, err = root.Child(3)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)

	require.NoError(t, root.RemoveChild(calc(3)))
	assert.Equal(t, []domain.NodeID{calc(2)}, root.Children())
	assert.Equal(t, "root", root.Name())
}

func TestTransaction_AbortRestoresEverything(t *testing.T) {
	doc := newDoc(t, 2)
	require.NoError(t, doc.Open("seed"))
	require.NoError(t, param(t, doc, 1, pA).SetValue(domain.RealValue(1)))
	_, err := doc.Commit(context.Background())
	require.NoError(t, err)
	before := doc.Snapshot()

	require.NoError(t, doc.Open("scratch"))
	assert.ErrorIs(t, doc.Open("nested"), domain.ErrTransactionActive)

	require.NoError(t, param(t, doc, 1, pA).SetValue(domain.RealValue(2)))
	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	_, err = part.AddNode()
	require.NoError(t, err)
	require.NoError(t, part.RemoveNode(2))
	require.NoError(t, doc.SetStale(calc(1).Param(pB), true))
	n, err := doc.Node(calc(1))
	require.NoError(t, err)
	require.NoError(t, n.SetName("renamed"))

	require.NoError(t, doc.Abort())
	ports.AssertSnapshotsEqual(t, before, doc.Snapshot())
	assert.False(t, doc.InTransaction())
	assert.ErrorIs(t, doc.Abort(), domain.ErrNoActiveTransaction)
}

func TestTransaction_UndoRedo(t *testing.T) {
	doc := newDoc(t, 1)
	initial := doc.Snapshot()

	require.NoError(t, doc.Open("edit"))
	require.NoError(t, param(t, doc, 1, pA).SetValue(domain.RealValue(5)))
	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	_, err = part.AddNode()
	require.NoError(t, err)
	_, err = doc.Commit(context.Background())
	require.NoError(t, err)
	edited := doc.Snapshot()

	require.NoError(t, doc.Undo())
	ports.AssertSnapshotsEqual(t, initial, doc.Snapshot())
	assert.True(t, doc.CanRedo())

	require.NoError(t, doc.Redo())
	ports.AssertSnapshotsEqual(t, edited, doc.Snapshot())

	require.NoError(t, doc.Undo())
	require.NoError(t, doc.Undo(), "the setup transaction is undoable too")
	assert.ErrorIs(t, doc.Undo(), domain.ErrNothingToUndo)

	require.NoError(t, doc.Open("blocks"))
	assert.ErrorIs(t, doc.Redo(), domain.ErrTransactionActive)
}

func TestTransaction_NewCommitClearsRedo(t *testing.T) {
	doc := newDoc(t, 1)
	require.NoError(t, doc.Undo())
	require.True(t, doc.CanRedo())

	require.NoError(t, doc.Open("fresh"))
	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	_, err = part.AddNode()
	require.NoError(t, err)
	_, err = doc.Commit(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.CanRedo())
}

type failingExecutor struct {
	err   error
	calls int
}

func (f *failingExecutor) Execute(ctx context.Context, doc *document.Document, progress ports.Progress) (*domain.ExecutionReport, error) {
	f.calls++
	return &domain.ExecutionReport{Document: doc.ID()}, f.err
}

func TestCommit_ExecutorErrorRollsBack(t *testing.T) {
	exec := &failingExecutor{}
	var aborted, committed int
	doc := newDoc(t, 1, document.WithExecutor(exec), document.WithHooks(domain.LifecycleHooks{
		OnCommit: func(ctx context.Context, e *domain.TransactionEvent) { committed++ },
		OnAbort:  func(ctx context.Context, e *domain.TransactionEvent) { aborted++ },
	}))
	require.Equal(t, 1, committed)
	before := doc.Snapshot()

	require.NoError(t, doc.Open("doomed"))
	require.NoError(t, param(t, doc, 1, pA).SetValue(domain.RealValue(9)))
	part, err := doc.Partition("Calc")
	require.NoError(t, err)
	_, err = part.AddNode()
	require.NoError(t, err)

	exec.err = &domain.CycleError{Path: []domain.GID{calc(1).Param(pFn)}}
	_, err = doc.Commit(context.Background())
	require.ErrorIs(t, err, domain.ErrCyclicDependency)

	assert.Equal(t, 2, exec.calls)
	assert.Equal(t, 1, aborted)
	assert.False(t, doc.InTransaction())
	ports.AssertSnapshotsEqual(t, before, doc.Snapshot())
}

func TestSnapshot_RoundTrip(t *testing.T) {
	doc := newDoc(t, 3)
	require.NoError(t, doc.Open("fill"))
	require.NoError(t, param(t, doc, 1, pA).SetValue(domain.RealValue(1.5)))
	require.NoError(t, param(t, doc, 1, pRef).SetValue(domain.ReferenceValue(calc(2))))
	require.NoError(t, param(t, doc, 2, pRefs).SetValue(domain.ReferenceListValue(calc(1), calc(3))))
	require.NoError(t, param(t, doc, 2, pExpr).SetEvaluation("a + 1", domain.Variable{Name: "a", Source: calc(1).Param(pA)}))
	require.NoError(t, param(t, doc, 3, pFn).SetValue(domain.FunctionValue(domain.FunctionBinding{
		Function: "copy",
		Inputs:   []domain.GID{calc(1).Param(pA)},
		Outputs:  []domain.GID{calc(3).Param(pB)},
		Priority: domain.PriorityHigh,
	})))
	require.NoError(t, doc.SetStale(calc(3).Param(pB), true))
	_, err := doc.Commit(context.Background())
	require.NoError(t, err)

	snap := doc.Snapshot()
	loaded, err := document.FromSnapshot(doc.Registry(), snap)
	require.NoError(t, err)
	ports.AssertSnapshotsEqual(t, snap, loaded.Snapshot())

	lp, err := loaded.Partition("Calc")
	require.NoError(t, err)
	require.NoError(t, loaded.Open("after load"))
	n, err := lp.AddNode()
	require.NoError(t, err)
	assert.Equal(t, 4, n.ID().Ordinal, "next ordinal survives persistence")
}

func TestFromSnapshot_RejectsLayoutMismatch(t *testing.T) {
	reg := testRegistry(t)
	good := newDoc(t, 1).Snapshot()

	tests := []struct {
		name   string
		mutate func(s *domain.Snapshot)
		want   error
	}{
		{"Old Version", func(s *domain.Snapshot) { s.Version = 0 }, domain.ErrLayoutMismatch},
		{"Unknown Type", func(s *domain.Snapshot) { s.Partitions[0].Type = "Nope" }, domain.ErrUnknownType},
		{"Renamed Parameter", func(s *domain.Snapshot) { s.Partitions[0].Nodes[0].Params[1].Name = "alpha" }, domain.ErrLayoutMismatch},
		{"Kind Changed", func(s *domain.Snapshot) { s.Partitions[0].Nodes[0].Params[1].Kind = domain.KindInt }, domain.ErrLayoutMismatch},
		{"Extra Parameter", func(s *domain.Snapshot) {
			s.Partitions[0].Nodes[0].Params = append(s.Partitions[0].Nodes[0].Params,
				domain.ParamSnapshot{Index: 99, Name: "x", Kind: domain.KindInt})
		}, domain.ErrUnknownParameterID},
		{"Missing Parameter", func(s *domain.Snapshot) {
			params := s.Partitions[0].Nodes[0].Params
			s.Partitions[0].Nodes[0].Params = params[:len(params)-1]
		}, domain.ErrLayoutMismatch},
		{"Duplicate Parameter", func(s *domain.Snapshot) {
			params := s.Partitions[0].Nodes[0].Params
			params[len(params)-1] = params[0]
		}, domain.ErrLayoutMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := good.Clone()
			tt.mutate(snap)
			_, err := document.FromSnapshot(reg, snap)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
