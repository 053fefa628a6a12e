// Package scriptbox compiles, caches and runs scripts inside a capability
// sandbox.
//
// # Overview
//
// A script is a code string plus metadata: a file name, library references
// and namespaces to import. The file name is the cache identity. The first
// execution of a name compiles the script and stores the artifact under the
// code directory; every later execution of that name runs the stored
// artifact without compiling, even if the code changed.
//
// # Basic Usage
//
//	engine, _ := executor.New(javascript.New(), executor.WithFileName("hello.js"))
//
//	res, err := engine.Execute(ctx, executor.Request{Code: `console.log("hello")`})
//	if err != nil {
//	    // the environment failed: unwritable cache, missing toolchain
//	}
//	switch res.State() {
//	case executor.StateCompileFailed:
//	    for _, d := range res.CompileError.Diagnostics {
//	        fmt.Println(d)
//	    }
//	case executor.StateExecuteFailed:
//	    fmt.Println(res.ExecuteError.Message)
//	}
//
// # Sandbox
//
// Scripts run inside a [sandbox.Boundary] built from a [sandbox.Policy]. The
// default policy grants execution, outbound HTTP, DNS and network probes.
// There is no filesystem or process capability.
//
// See the [executor], [cache], [sandbox], [hostfunc], [language/javascript]
// and [language/golang] packages for detailed API documentation.
package scriptbox
