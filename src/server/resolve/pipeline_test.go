package resolve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	interrors "def-gateway/src/internal/errors"
	"def-gateway/src/internal/types"
	"def-gateway/src/server/documents"
	"def-gateway/src/server/repl"
)

type fakeRef struct {
	id uint64
}

func (r *fakeRef) RefID() uint64 { return r.id }

// mockProvider implements documents.Provider with scripted answers
type mockProvider struct {
	valid      bool
	name       string
	span       protocol.Range
	readErr    error
	foundRef   types.NamedElementRef
	findErr    error
	ensureErr  error
	foundAtPos protocol.Position
}

func (m *mockProvider) PositionAt(ctx context.Context, file uri.URI, offset int) (protocol.Position, error) {
	return protocol.Position{}, nil
}

func (m *mockProvider) ModuleName(ctx context.Context, file uri.URI) (string, bool) {
	return "", false
}

func (m *mockProvider) IsValid(ctx context.Context, ref types.NamedElementRef) (bool, error) {
	if m.readErr != nil {
		return false, m.readErr
	}
	return m.valid, nil
}

func (m *mockProvider) Name(ctx context.Context, ref types.NamedElementRef) (string, error) {
	if m.readErr != nil {
		return "", m.readErr
	}
	return m.name, nil
}

func (m *mockProvider) Span(ctx context.Context, ref types.NamedElementRef) (protocol.Range, error) {
	if m.readErr != nil {
		return protocol.Range{}, m.readErr
	}
	return m.span, nil
}

func (m *mockProvider) FindNamedElementAt(ctx context.Context, file uri.URI, pos protocol.Position, identifier string) (types.NamedElementRef, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.foundAtPos = pos
	return m.foundRef, nil
}

func (m *mockProvider) FindNamedElement(ctx context.Context, file uri.URI, identifier string) (types.NamedElementRef, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.foundRef, nil
}

func (m *mockProvider) EnsureLoaded(ctx context.Context, file uri.URI) error {
	return m.ensureErr
}

// mockSession implements repl.Session with a scripted reply
type mockSession struct {
	busy      bool
	loaded    bool
	response  *repl.Response
	err       error
	lastQuery repl.LocationQuery
	called    bool
}

func (m *mockSession) IsBusy() bool   { return m.busy }
func (m *mockSession) IsLoaded() bool { return m.loaded }

func (m *mockSession) FindLocationInfo(ctx context.Context, query repl.LocationQuery) (*repl.Response, error) {
	m.called = true
	m.lastQuery = query
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// mockRegistry implements repl.Registry over a single session
type mockRegistry struct {
	session repl.Session
}

func (m *mockRegistry) SessionFor(file uri.URI) (repl.Session, bool) {
	if m.session == nil {
		return nil, false
	}
	return m.session, true
}

// mockModules implements ModuleLookup over a fixed table
type mockModules struct {
	files map[string]uri.URI
}

func (m *mockModules) Lookup(name string) (uri.URI, bool) {
	f, ok := m.files[name]
	return f, ok
}

func spanAt(line, startCol, endCol uint32) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: line, Character: startCol},
		End:   protocol.Position{Line: line, Character: endCol},
	}
}

func pipelineKey() types.Key {
	return types.Key{
		File:   uri.File("/proj/src/Foo.hs"),
		Module: "Foo",
		Ref:    &fakeRef{id: 1},
	}
}

func TestPipeline_ValueLevelQueryUsesFullSpan(t *testing.T) {
	docs := &mockProvider{valid: true, name: "myFunc", span: spanAt(9, 4, 10)}
	session := &mockSession{loaded: true, response: &repl.Response{}}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	_, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, session.called)
	assert.Equal(t, 10, session.lastQuery.StartLine)
	assert.Equal(t, 5, session.lastQuery.StartCol)
	assert.Equal(t, 11, session.lastQuery.EndCol)
	assert.Equal(t, "myFunc", session.lastQuery.Identifier)
}

func TestPipeline_TypeLevelQueryShiftsEndColumn(t *testing.T) {
	docs := &mockProvider{valid: true, name: "MyType", span: spanAt(9, 4, 10)}
	session := &mockSession{loaded: true, response: &repl.Response{}}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	_, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, session.called)
	assert.Equal(t, 10, session.lastQuery.EndCol, "upper-case initial shifts the end column back by one")
}

func TestPipeline_InvalidReferenceIsDefinitive(t *testing.T) {
	docs := &mockProvider{valid: false}
	session := &mockSession{loaded: true}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.NoInfoAvailable, result.NoInfo.Kind)
	assert.False(t, session.called)
}

func TestPipeline_MissingSessionIsReplNotAvailable(t *testing.T) {
	docs := &mockProvider{valid: true, name: "foo", span: spanAt(0, 0, 3)}
	p := NewPipeline(docs, &mockRegistry{}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.ReplNotAvailable, result.NoInfo.Kind)
	assert.True(t, result.IsTransient())
}

func TestPipeline_BusySessionIsReplIsBusy(t *testing.T) {
	docs := &mockProvider{valid: true, name: "foo", span: spanAt(0, 0, 3)}
	session := &mockSession{busy: true, loaded: true}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.ReplIsBusy, result.NoInfo.Kind)
	assert.False(t, session.called, "a busy session is never queued on")
}

func TestPipeline_StderrOutputIsReplNotAvailable(t *testing.T) {
	docs := &mockProvider{valid: true, name: "foo", span: spanAt(0, 0, 3)}
	session := &mockSession{loaded: true, response: &repl.Response{
		Stdout: []string{"/proj/src/Bar.hs:(1,1)-(1,4)"},
		Stderr: []string{"error: something broke"},
	}}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.ReplNotAvailable, result.NoInfo.Kind)
}

func TestPipeline_EmptyReplyIsNoInfoAvailable(t *testing.T) {
	docs := &mockProvider{valid: true, name: "foo", span: spanAt(0, 0, 3)}
	session := &mockSession{loaded: true, response: &repl.Response{}}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.NoInfoAvailable, result.NoInfo.Kind)
	assert.False(t, result.IsTransient())
}

func TestPipeline_LocalReplyResolvesToLocalModuleLocation(t *testing.T) {
	target := &fakeRef{id: 7}
	docs := &mockProvider{valid: true, name: "bar", span: spanAt(9, 4, 7), foundRef: target}
	session := &mockSession{loaded: true, response: &repl.Response{
		Stdout: []string{"/proj/src/Bar.hs:(3,9)-(3,12)"},
	}}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsLocation())
	assert.Equal(t, types.LocalModuleLocation, result.Location.Kind)
	assert.Equal(t, uri.File("/proj/src/Bar.hs"), result.Location.File)
	assert.Equal(t, target, result.Location.Element)
	assert.Equal(t, "bar", result.Location.Name)
	assert.Equal(t, "bar", result.Identifier)

	// The reported 1-based (3,9) becomes a 0-based search position.
	assert.Equal(t, protocol.Position{Line: 2, Character: 8}, docs.foundAtPos)
}

func TestPipeline_PackageReplyResolvesThroughModuleIndex(t *testing.T) {
	target := &fakeRef{id: 7}
	listFile := uri.File("/ghc/lib/Data/List.hs")
	docs := &mockProvider{valid: true, name: "sortBy", span: spanAt(9, 4, 10), foundRef: target}
	session := &mockSession{loaded: true, response: &repl.Response{
		Stdout: []string{"base-4.14.0.0:Data.List"},
	}}
	modules := &mockModules{files: map[string]uri.URI{"Data.List": listFile}}
	p := NewPipeline(docs, &mockRegistry{session: session}, modules)

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsLocation())
	assert.Equal(t, types.PackageModuleLocation, result.Location.Kind)
	assert.Equal(t, "Data.List", result.Location.ModuleName)
	assert.Equal(t, target, result.Location.Element)
}

func TestPipeline_UnindexedPackageModuleIsDefinitive(t *testing.T) {
	docs := &mockProvider{valid: true, name: "sortBy", span: spanAt(9, 4, 10)}
	session := &mockSession{loaded: true, response: &repl.Response{
		Stdout: []string{"base-4.14.0.0:Data.List"},
	}}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.NoInfoAvailable, result.NoInfo.Kind)
}

func TestPipeline_ReadTimeoutIsReadActionTimeout(t *testing.T) {
	docs := &mockProvider{readErr: interrors.NewTimeoutError("span", 50*time.Millisecond, nil)}
	session := &mockSession{loaded: true}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.ReadActionTimeout, result.NoInfo.Kind)
	assert.True(t, result.IsTransient())
}

func TestPipeline_IndexNotReadyPropagatesAsKind(t *testing.T) {
	docs := &mockProvider{readErr: documents.ErrIndexNotReady}
	session := &mockSession{loaded: true}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	result, err := p.Compute(context.Background(), pipelineKey())
	require.NoError(t, err)

	require.True(t, result.IsNoInfo())
	assert.Equal(t, types.IndexNotReady, result.NoInfo.Kind)
}

func TestPipeline_CancellationPropagatesAsError(t *testing.T) {
	docs := &mockProvider{readErr: context.Canceled}
	session := &mockSession{loaded: true}
	p := NewPipeline(docs, &mockRegistry{session: session}, &mockModules{})

	_, err := p.Compute(context.Background(), pipelineKey())
	assert.ErrorIs(t, err, context.Canceled)
}
