// Package isorazor compiles and renders Razor-like templates behind an
// isolation boundary, with a content-addressed artifact cache and a
// deadline on every render.
//
// Templates mix literal markup with @-prefixed code:
//
//	<h1>@Model.Name</h1>
//	@foreach (var tag in Model.Tags) {<span>@tag</span>}
//
// # Basic Usage
//
// Create a templater, compile once and render many times:
//
//	t := isorazor.MustNew()
//	defer t.Close()
//
//	if _, err := t.Compile(ctx, "hello", "Hello, @ViewBag.User!", time.Time{}); err != nil {
//	    return err
//	}
//	out, err := t.Render(ctx, "hello", nil, isorazor.ViewBagFromMap(map[string]any{"User": "Ada"}))
//	// out: "Hello, Ada!"
//
// Parse compiles and renders in one call. Compiling unchanged text again is
// a cache hit; the artifact is only rebuilt when the text or the timestamp
// changes.
//
// # Typed Models
//
// Register a Go type under a model name, then compile against it:
//
//	isorazor.MustRegisterModel[Person]("Person")
//
//	t.Compile(ctx, "card", "@Model.Name", time.Time{}, isorazor.WithBaseType(isorazor.BaseTypeForModel(Person{})))
//
// Rendering with a model of another type fails with ErrModelMismatch.
//
// # Layouts, Sections and Includes
//
// A page names its layout and defines sections; the layout places the body
// and the sections:
//
//	t.CompileLayout(ctx, "Site", `<body>@RenderBody()</body>@RenderSection("Foot", false)`, time.Time{})
//	t.Compile(ctx, "page", `@{ Layout = "Site"; }Hi@section Foot {<footer/>}`, time.Time{})
//
// Include renders another compiled template inline. Layouts and includes
// are looked up in the cache, then among the members of the same group,
// then in the configured TemplateStorage.
//
// # Isolation and Deadlines
//
// IsolationInProcess runs templates in a sandboxed interpreter inside the
// host. IsolationProcess runs them in worker processes that are killed when
// a render overruns; programs using it must call RunWorkerIfRequested first
// thing in main:
//
//	func main() {
//	    isorazor.RunWorkerIfRequested()
//	    ...
//	}
//
// Either way a render that exceeds its deadline returns ErrTimeout and the
// templater stays usable.
//
// # Error Handling
//
// Errors wrap sentinels for errors.Is: ErrTemplateNotFound,
// ErrLayoutNotFound, ErrModelMismatch, ErrMissingSection, ErrTimeout,
// ErrDisposed, ErrDuplicateKey, ErrPermission and ErrCompilation. A failed
// compile returns a *CompilationError listing every diagnostic.
//
// # Configuration
//
// Customize the templater with functional options or a YAML file:
//
//	t, _ := isorazor.New(
//	    isorazor.WithTemplateDir("/var/lib/isorazor"),
//	    isorazor.WithRenderTimeout(2*time.Second),
//	    isorazor.WithPersistence(true),
//	    isorazor.WithLogger(logger),
//	)
package isorazor
