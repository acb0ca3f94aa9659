package isorazor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/itsatony/go-isorazor/internal"
)

type testPerson struct {
	Name string
	Age  int
	Tags []string
}

type testOrder struct {
	ID int
}

func init() {
	MustRegisterModel[testPerson]("Person")
	MustRegisterModel[testOrder]("Order")
}

func TestMain(m *testing.M) {
	// process isolation tests re-execute this binary as the worker
	RunWorkerIfRequested()
	os.Exit(m.Run())
}

const (
	testLayout = `<html><title>@ViewBag.Title</title><body>@RenderBody()</body>` +
		`@if (IsSectionDefined("Foot")) {<footer>@RenderSection("Foot", false)</footer>}</html>`
	testPage = `@{ Layout = "Main"; ViewBag.Title = "Hi " + Model.Name; }` +
		`<ul>@foreach (var t in Model.Tags) {<li>@t</li>}</ul>@section Foot {@Model.Age years}`
)

func newTestTemplater(t *testing.T, opts ...Option) *Templater {
	t.Helper()
	opts = append([]Option{
		WithTemplateDir(t.TempDir()),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	tr, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTemplater_ParseUntyped(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	out, err := tr.Parse(ctx, "hello", "Hello @(1 + 2) <b>@(\"<i>\")</b>", time.Time{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello 3 <b>&lt;i&gt;</b>", out)
}

func TestTemplater_LayoutSectionsAndViewBag(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	_, err := tr.CompileLayout(ctx, "Main", testLayout, time.Time{})
	require.NoError(t, err)

	person := testPerson{Name: "Ada <3", Age: 36, Tags: []string{"math", "code"}}
	out, err := tr.Parse(ctx, "page", testPage, time.Time{}, person, nil)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "layout_page", []byte(out))
}

func TestTemplater_ViewBagIsCopied(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		spawn bool
	}{
		{name: "in process"},
		{name: "process isolation", opts: []Option{WithIsolation(IsolationProcess), WithWorkers(1)}, spawn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.spawn && testing.Short() {
				t.Skip("spawns worker processes")
			}
			tr := newTestTemplater(t, tt.opts...)

			bag := NewViewBag()
			bag.Set("Greeting", "Hey")
			out, err := tr.Parse(context.Background(), "bag", `@ViewBag.Greeting@{ ViewBag.Seen = true; }@ViewBag.Seen`, time.Time{}, nil, bag)
			require.NoError(t, err)
			assert.Equal(t, "Heytrue", out)

			_, ok := bag.Get("Seen")
			assert.False(t, ok)
			assert.Equal(t, []string{"Greeting"}, bag.Names())
		})
	}
}

func TestTemplater_CompileIsCached(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := tr.Compile(ctx, "c", "one", ts)
	require.NoError(t, err)
	again, err := tr.Compile(ctx, "c", "one", ts)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	changed, err := tr.Compile(ctx, "c", "two", ts)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)

	touched, err := tr.Compile(ctx, "c", "two", ts.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, changed, touched)

	// the superseded artifact stays until Close
	assert.FileExists(t, first)
	assert.Equal(t, []string{"c"}, tr.Names())
}

func TestTemplater_RenderValidatesEntry(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := tr.Compile(ctx, "v", "text", ts)
	require.NoError(t, err)

	out, err := tr.Render(ctx, "v", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "text", out)

	_, err = tr.Render(ctx, "v", nil, nil, WithSource("other"))
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = tr.Render(ctx, "v", nil, nil, WithTimestamp(ts.Add(time.Hour)))
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = tr.Render(ctx, "missing", nil, nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplater_RawEncoding(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	_, err := tr.Compile(ctx, "raw", `@("<b>")`, time.Time{})
	require.NoError(t, err)

	out, err := tr.Render(ctx, "raw", nil, nil, WithEncoding(EncodingRaw))
	require.NoError(t, err)
	assert.Equal(t, "<b>", out)
}

func TestTemplater_Include(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	_, err := tr.Compile(ctx, "Badge", "<b>@Model.Name</b>", time.Time{}, WithBaseType(ModelBaseType("Person")))
	require.NoError(t, err)
	_, err = tr.Compile(ctx, "Plain", "plain", time.Time{})
	require.NoError(t, err)

	out, err := tr.Parse(ctx, "inc", `@Include("Badge", Model)|@Include("Plain", null)|@Include("Plain")`, time.Time{}, testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "<b>Ada</b>|plain|plain", out)

	_, err = tr.Compile(ctx, "typedPage", `@Include("Plain")`, time.Time{}, WithBaseType(ModelBaseType("Person")))
	require.NoError(t, err)
	out, err = tr.Render(ctx, "typedPage", testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)
}

func TestTemplater_ModelMismatch(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	_, err := tr.Compile(ctx, "typed", "@Model.Name", time.Time{}, WithBaseType(ModelBaseType("Person")))
	require.NoError(t, err)

	_, err = tr.Render(ctx, "typed", testOrder{ID: 1}, nil)
	assert.ErrorIs(t, err, ErrModelMismatch)

	out, err := tr.Render(ctx, "typed", testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Ada", out)
}

func TestTemplater_MissingRequiredSection(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	_, err := tr.CompileLayout(ctx, "Strict", `@RenderBody()@RenderSection("Scripts", true)`, time.Time{})
	require.NoError(t, err)

	_, err = tr.Parse(ctx, "nosection", `@{ Layout = "Strict"; }body`, time.Time{}, nil, nil)
	assert.ErrorIs(t, err, ErrMissingSection)
}

func TestTemplater_MissingLayout(t *testing.T) {
	tr := newTestTemplater(t)

	_, err := tr.Parse(context.Background(), "orphan", `@{ Layout = "Nope"; }x`, time.Time{}, nil, nil)
	assert.ErrorIs(t, err, ErrLayoutNotFound)
}

func TestTemplater_CompilationError(t *testing.T) {
	tr := newTestTemplater(t)

	_, err := tr.Compile(context.Background(), "broken", "@if (true {", time.Time{})
	require.Error(t, err)

	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)
	assert.ErrorIs(t, err, ErrCompilation)
	assert.Equal(t, "broken", compErr.Name)
	assert.Empty(t, tr.Names())
}

func TestTemplater_EmptyName(t *testing.T) {
	tr := newTestTemplater(t)

	_, err := tr.Compile(context.Background(), "", "x", time.Time{})
	assert.Error(t, err)
}

func TestTemplater_Timeout(t *testing.T) {
	tr := newTestTemplater(t, WithRenderTimeout(100*time.Millisecond))
	ctx := context.Background()

	_, err := tr.Compile(ctx, "loop", "@while (true) {x}", time.Time{})
	require.NoError(t, err)

	start := time.Now()
	_, err = tr.Render(ctx, "loop", nil, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)

	// the templater stays usable after a killed render
	out, err := tr.Parse(ctx, "after", "still here", time.Time{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "still here", out)
}

func TestTemplater_TimeoutPerCall(t *testing.T) {
	tr := newTestTemplater(t, WithRenderTimeout(0))
	ctx := context.Background()

	_, err := tr.Compile(ctx, "loop", "@while (true) {x}", time.Time{})
	require.NoError(t, err)

	_, err = tr.Render(ctx, "loop", nil, nil, WithTimeout(50*time.Millisecond))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestTemplater_OversizedValueFails(t *testing.T) {
	tr := newTestTemplater(t, WithRenderTimeout(2*time.Second))
	ctx := context.Background()

	start := time.Now()
	_, err := tr.Parse(ctx, "huge", `@{ var xs = range(0, 60000000); }done`, time.Time{}, nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	var evalErr *internal.ExprEvalError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, internal.ErrMsgValueTooLarge, evalErr.Message)
	assert.Less(t, time.Since(start), time.Second)

	_, err = tr.Parse(ctx, "doubling", `@{ var s = "xxxxxxxx"; }@while (true) {@{ s = s + s; }}`, time.Time{}, nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestTemplater_ContextCanceled(t *testing.T) {
	tr := newTestTemplater(t, WithRenderTimeout(0))

	_, err := tr.Compile(context.Background(), "loop", "@while (true) {x}", time.Time{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = tr.Render(ctx, "loop", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTemplater_Group(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	members := map[string]string{
		"Item":  `<i>@Model.Name</i>`,
		"Outer": `(@Include("Item", Model))`,
		"Blank": "   ",
	}
	_, err := tr.CompileGroup(ctx, "mail", members, time.Time{}, WithBaseType(ModelBaseType("Person")))
	require.NoError(t, err)

	out, err := tr.RenderGroup(ctx, "mail", "Outer", testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "(<i>Ada</i>)", out)

	out, err = tr.RenderGroup(ctx, "mail", "Item", testPerson{Name: "Bob"}, nil, WithMembers(members))
	require.NoError(t, err)
	assert.Equal(t, "<i>Bob</i>", out)

	_, err = tr.RenderGroup(ctx, "mail", "Item", testPerson{Name: "Bob"}, nil,
		WithMembers(map[string]string{"Item": "changed"}))
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = tr.RenderGroup(ctx, "mail", "Nope", testPerson{Name: "Ada"}, nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = tr.CompileGroup(ctx, "empty", map[string]string{}, time.Time{})
	assert.Error(t, err)
}

func TestTemplater_DeleteTemplate(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	loc, err := tr.Compile(ctx, "gone", "x", time.Time{})
	require.NoError(t, err)
	require.NoError(t, tr.DeleteTemplate(ctx, "gone"))

	_, err = tr.Render(ctx, "gone", nil, nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.NoFileExists(t, loc)

	require.NoError(t, tr.DeleteTemplate(ctx, "never"))
}

func TestTemplater_CloseDisposes(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(WithTemplateDir(dir))
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := tr.Compile(ctx, "x", "x", time.Time{})
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	assert.NoFileExists(t, loc)
	_, err = tr.Compile(ctx, "y", "y", time.Time{})
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = tr.Render(ctx, "x", nil, nil)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestTemplater_OwnedDirRemoved(t *testing.T) {
	tr, err := New()
	require.NoError(t, err)
	dir := tr.TemplateDir()
	assert.DirExists(t, dir)

	require.NoError(t, tr.Close())
	assert.NoDirExists(t, dir)
}

func TestTemplater_Persistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := New(WithTemplateDir(dir), WithPersistence(true))
	require.NoError(t, err)
	loc, err := first.Compile(ctx, "kept", "Kept @(40 + 2)", ts)
	require.NoError(t, err)
	require.NoError(t, first.Close())
	assert.FileExists(t, loc)

	second, err := New(WithTemplateDir(dir), WithPersistence(true))
	require.NoError(t, err)
	defer second.Close()

	out, err := second.Render(ctx, "kept", nil, nil, WithTimestamp(ts))
	require.NoError(t, err)
	assert.Equal(t, "Kept 42", out)

	again, err := second.Compile(ctx, "kept", "Kept @(40 + 2)", ts)
	require.NoError(t, err)
	assert.Equal(t, loc, again)
}

func TestTemplater_SQLitePersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, SQLiteDefaultFileName)

	p, err := NewSQLitePersister(dbPath)
	require.NoError(t, err)
	first, err := New(WithTemplateDir(dir), WithCachePersister(p))
	require.NoError(t, err)
	_, err = first.Compile(ctx, "kept", "sqlite", time.Time{})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	p2, err := NewSQLitePersister(dbPath)
	require.NoError(t, err)
	second, err := New(WithTemplateDir(dir), WithCachePersister(p2))
	require.NoError(t, err)
	defer second.Close()

	out, err := second.Render(ctx, "kept", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", out)
}

func TestTemplater_ReadText(t *testing.T) {
	readDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(readDir, "snippet.txt"), []byte("from disk"), 0o600))
	tr := newTestTemplater(t, WithAllowedReadDirs(readDir), WithDefaultImports(append(slices.Clone(DefaultImports), ImportIO)...))
	ctx := context.Background()

	// ReadText needs the IO import
	_, err := tr.Compile(ctx, "noimport", `@ReadText("x")`, time.Time{}, WithImports(DefaultImports...))
	var compErr *CompilationError
	require.ErrorAs(t, err, &compErr)

	out, err := tr.Parse(ctx, "read", `@ReadText("`+filepath.ToSlash(filepath.Join(readDir, "snippet.txt"))+`")`, time.Time{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "from disk", out)

	_, err = tr.Parse(ctx, "escape", `@ReadText("/etc/passwd")`, time.Time{}, nil, nil)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestTemplater_ConcurrentRenders(t *testing.T) {
	tr := newTestTemplater(t)
	ctx := context.Background()

	_, err := tr.Compile(ctx, "greet", "Hi @Model.Name", time.Time{}, WithBaseType(ModelBaseType("Person")))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := tr.Render(ctx, "greet", testPerson{Name: "Ada"}, nil)
			if err == nil && out != "Hi Ada" {
				err = errors.New(out)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestTemplater_RenderStored(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "Shell", Kind: TemplateKindLayout, Source: "<@RenderBody()>"}))
	require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "card", Model: "Person", Source: `@{ Layout = "Shell"; }@Model.Name`}))

	tr := newTestTemplater(t, WithStorage(storage))

	out, err := tr.RenderStored(ctx, "card", testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "<Ada>", out)
	assert.ElementsMatch(t, []string{"Shell", "card"}, tr.Names())

	require.NoError(t, storage.Save(ctx, &StoredTemplate{Name: "card", Model: "Person", Source: `@{ Layout = "Shell"; }@Model.Name!`}))
	out, err = tr.RenderStored(ctx, "card", testPerson{Name: "Ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "<Ada!>", out)

	_, err = tr.RenderStored(ctx, "nope", nil, nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplater_RenderStoredWithoutStorage(t *testing.T) {
	tr := newTestTemplater(t)

	_, err := tr.RenderStored(context.Background(), "x", nil, nil)
	assert.Error(t, err)
}

func TestTemplater_InvalidIsolation(t *testing.T) {
	_, err := New(WithTemplateDir(t.TempDir()), WithIsolation("thread"))
	assert.Error(t, err)
}

func TestTemplater_ProcessIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns worker processes")
	}
	tr := newTestTemplater(t, WithIsolation(IsolationProcess), WithWorkers(1), WithRenderTimeout(500*time.Millisecond))
	ctx := context.Background()

	_, err := tr.CompileLayout(ctx, "Main", testLayout, time.Time{})
	require.NoError(t, err)

	person := testPerson{Name: "Ada <3", Age: 36, Tags: []string{"math", "code"}}
	out, err := tr.Parse(ctx, "page", testPage, time.Time{}, person, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<html><title>Hi Ada &lt;3</title>"), out)

	_, err = tr.Compile(ctx, "typed", "@Model.Name", time.Time{}, WithBaseType(ModelBaseType("Person")))
	require.NoError(t, err)
	_, err = tr.Render(ctx, "typed", testOrder{ID: 1}, nil)
	assert.ErrorIs(t, err, ErrModelMismatch)

	_, err = tr.Compile(ctx, "broken", "@if (true {", time.Time{})
	var compErr *CompilationError
	assert.ErrorAs(t, err, &compErr)

	_, err = tr.Compile(ctx, "loop", "@while (true) {x}", time.Time{})
	require.NoError(t, err)
	_, err = tr.Render(ctx, "loop", nil, nil)
	assert.ErrorIs(t, err, ErrTimeout)

	out, err = tr.Render(ctx, "typed", testPerson{Name: "Bob"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bob", out)
}
