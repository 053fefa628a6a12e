// Package executor is the compile, cache and execute pipeline.
//
// An [Engine] takes a code string and turns it into a [Result]:
//
//  1. The session resolver merges the request's references and namespaces
//     with those contributed by extension packs ([ResolveSession]).
//  2. The artifact for the script's file name is looked up in the cache
//     directory. An existing artifact is reused as is.
//  3. On a miss the [Language] compiles the code. Diagnostics end the call
//     with [Result.CompileError]; otherwise the artifact is stored.
//  4. The artifact runs inside a fresh sandbox boundary. A fault ends the
//     call with [Result.ExecuteError].
//
// # Basic Usage
//
//	engine, err := executor.New(javascript.New(),
//	    executor.WithFileName("hello.js"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := engine.Execute(ctx, executor.Request{Code: `console.log("hi")`})
//	if err != nil {
//	    log.Fatal(err) // environment failure
//	}
//	fmt.Println(result.State(), result.Output)
//
// # Cache Identity
//
// The cache key is the script's file base name plus the language's
// artifact suffix. Changing the code without changing the file name keeps
// running the old artifact. Two concurrent calls for the same file name may
// both compile; the last write wins and both writes hold the same bytes.
//
// # Language Interface
//
// To add support for a new language, implement the [Language] interface.
// See [github.com/caffeineduck/scriptbox/language/javascript] for an example.
package executor
