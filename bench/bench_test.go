// Package bench measures what the artifact cache buys.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/caffeineduck/scriptbox/cache"
	"github.com/caffeineduck/scriptbox/executor"
	"github.com/caffeineduck/scriptbox/language/golang"
	"github.com/caffeineduck/scriptbox/language/javascript"
)

const computation = `var s = 0; for (var i = 0; i < 1000; i++) { s += i * i; } console.log(s);`

func newJSEngine(tb testing.TB, fs afero.Fs) *executor.Engine {
	tb.Helper()
	e, err := executor.New(javascript.New(), executor.WithFS(cache.NewFS(fs, "/bench")))
	if err != nil {
		tb.Fatal(err)
	}
	return e
}

func execute(tb testing.TB, e *executor.Engine, req executor.Request) executor.Result {
	tb.Helper()
	res, err := e.Execute(context.Background(), req)
	if err != nil {
		tb.Fatal(err)
	}
	if res.Err() != nil {
		tb.Fatal(res.Err())
	}
	return res
}

// --- JavaScript: every call compiles (new identity each time) ---

func BenchmarkJS_Compile(b *testing.B) {
	e := newJSEngine(b, afero.NewMemMapFs())
	for i := 0; i < b.N; i++ {
		execute(b, e, executor.Request{Code: computation, FileName: "s" + strconv.Itoa(i) + ".js"})
	}
}

// --- JavaScript: every call reuses the cached artifact ---

func BenchmarkJS_CacheHit(b *testing.B) {
	e := newJSEngine(b, afero.NewMemMapFs())
	execute(b, e, executor.Request{Code: computation, FileName: "s.js"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		execute(b, e, executor.Request{Code: computation, FileName: "s.js"})
	}
}

func BenchmarkJS_CacheHit_Parallel(b *testing.B) {
	e := newJSEngine(b, afero.NewMemMapFs())
	execute(b, e, executor.Request{Code: computation, FileName: "s.js"})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			res, err := e.Execute(context.Background(), executor.Request{Code: computation, FileName: "s.js"})
			if err != nil || !res.CacheHit {
				b.Errorf("cache hit = %v, err = %v", res.CacheHit, err)
				return
			}
		}
	})
}

// --- Native node, for reference ---

func BenchmarkNative_Node(b *testing.B) {
	if _, err := exec.LookPath("node"); err != nil {
		b.Skip("node not available")
	}
	for i := 0; i < b.N; i++ {
		exec.Command("node", "-e", computation).Run()
	}
}

func measure(runs int, fn func()) time.Duration {
	var total time.Duration
	for i := 0; i < runs; i++ {
		start := time.Now()
		fn()
		total += time.Since(start)
	}
	return total / time.Duration(runs)
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d >= time.Millisecond {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dus", d.Microseconds())
}

// TestCacheBenefit simulates separate CLI invocations sharing one cache
// directory: a new engine per call, the first one compiles.
func TestCacheBenefit(t *testing.T) {
	fs := afero.NewMemMapFs()
	var times []time.Duration

	for i := 0; i < 5; i++ {
		start := time.Now()
		res := execute(t, newJSEngine(t, fs), executor.Request{Code: computation, FileName: "cli.js"})
		times = append(times, time.Since(start))

		if hit := i > 0; res.CacheHit != hit {
			t.Fatalf("call %d: cache hit = %v, want %v", i+1, res.CacheHit, hit)
		}
	}

	t.Logf("Platform: %s/%s, CPUs: %d", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	for i, d := range times {
		label := "cached"
		if i == 0 {
			label = "compile"
		}
		t.Logf("Call %d (%s): %s", i+1, label, formatDuration(d))
	}
}

// TestGoCacheBenefit shows the toolchain build being skipped once the
// module is cached. It needs the go command.
func TestGoCacheBenefit(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping toolchain build in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}

	lang := golang.New(golang.WithCompilationCacheDir(t.TempDir()))
	defer lang.Close()

	e, err := executor.New(lang, executor.WithFS(cache.NewFS(afero.NewOsFs(), t.TempDir())))
	if err != nil {
		t.Fatal(err)
	}

	req := executor.Request{
		Code:       `fmt.Println(len(args))`,
		Namespaces: []string{"fmt"},
		FileName:   "bench.go",
	}

	cold := measure(1, func() { execute(t, e, req) })
	warm := measure(3, func() { execute(t, e, req) })

	t.Logf("go compile+run: %s, cached run: %s", formatDuration(cold), formatDuration(warm))
	if warm >= cold {
		t.Errorf("cached run (%s) should be faster than compile (%s)", warm, cold)
	}
}
