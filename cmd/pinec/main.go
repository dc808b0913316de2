// Command pinec is Pine2K's command-line front end: the only
// executable entry point tying the compiler, the host-binding runtime
// glue, the Thumb-1 interpreter, and the terminal inspector together
// (spec.md §4.9, SPEC_FULL.md "CLI — cmd/pinec"). Grounded on the
// teacher's main.go: a flat flag.Bool/String/Int block, -version/
// -help exiting early, verbose-gated diagnostics, and mode dispatch at
// the end rather than subcommands.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pine2k/pine2k/asm"
	"github.com/pine2k/pine2k/config"
	"github.com/pine2k/pine2k/runtime"
	"github.com/pine2k/pine2k/symtab"
	"github.com/pine2k/pine2k/tui"
)

// Version information; overridden at build time with
// go build -ldflags "-X main.Version=v1.2.3".
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	var (
		showVersion   = flag.Bool("version", false, "Show version information")
		compileFile   = flag.String("compile", "", "Compile a Pine2K source file")
		runFlag       = flag.Bool("run", false, "Run the compiled program (calls main)")
		tuiMode       = flag.Bool("tui", false, "Launch the terminal inspector after compiling")
		dumpA2L       = flag.Bool("dump-a2l", false, "Print a note on source-line lookup (the address-to-line table is not dumped)")
		dumpSymbols   = flag.Bool("dump-symbols", false, "Dump the symbol table and exit")
		dumpResources = flag.Bool("dump-resources", false, "Dump the resource table and exit")
		disasm        = flag.Bool("disasm", false, "Disassemble the compiled code buffer and exit")
		configPath    = flag.String("config", "", "Path to config.toml (default: platform config dir)")
		heapSize      = flag.Int("heap-size", 0, "Script heap size in bytes (must equal the compiled-in default)")
		codeSize      = flag.Int("code-size", 0, "Code buffer size in bytes (must equal the compiled-in default)")
		verbose       = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pinec %s (commit %s)\n", Version, Commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinec: %v\n", err)
		os.Exit(1)
	}

	if *heapSize != 0 && *heapSize != cfg.Compiler.HeapSize {
		fmt.Fprintf(os.Stderr, "pinec: -heap-size %d does not match the compiled-in heap size %d bytes; the script heap is a fixed spec constant, not an independent tunable (see DESIGN.md)\n", *heapSize, cfg.Compiler.HeapSize)
		os.Exit(1)
	}
	if *codeSize != 0 && *codeSize != asm.BufferSize {
		fmt.Fprintf(os.Stderr, "pinec: -code-size %d does not match the compiled-in code buffer size %d bytes; the 2 KiB buffer is a fixed spec constant, not an independent tunable (see DESIGN.md)\n", *codeSize, asm.BufferSize)
		os.Exit(1)
	}

	if *compileFile == "" {
		fmt.Fprintln(os.Stderr, "pinec: -compile <file> is required")
		flag.Usage()
		os.Exit(1)
	}

	src, err := os.ReadFile(*compileFile) // #nosec G304 -- user-specified source file
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinec: reading %s: %v\n", *compileFile, err)
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "pine2k-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinec: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	if *verbose {
		fmt.Printf("pinec: compiling %s (%d bytes)\n", *compileFile, len(src))
	}

	paths := runtime.Paths{
		Symbols:   filepath.Join(dir, "symbols.tmp"),
		Resources: filepath.Join(dir, "resources.tmp"),
	}
	prog, err := runtime.Compile(string(src), *compileFile, paths, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinec: %v\n", err)
		os.Exit(1)
	}
	defer prog.Close()

	if *verbose {
		fmt.Printf("pinec: compiled ok, %d global words\n", prog.Compiler.GlobalWords())
	}

	if *dumpSymbols {
		dumpSymbolTable(prog)
	}
	if *dumpResources {
		dumpResourceTable(prog)
	}
	if *dumpA2L {
		fmt.Println("pinec: -dump-a2l requires a faulting address; use -tui for interactive line lookup")
	}
	if *disasm {
		dumpDisasm(prog)
	}

	switch {
	case *tuiMode:
		if err := tui.Run(prog); err != nil {
			fmt.Fprintf(os.Stderr, "pinec: %v\n", err)
			os.Exit(1)
		}
	case *runFlag:
		result, err := prog.Call("main", cfg.Runtime.MaxSteps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pinec: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d\n", int32(result))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}

func dumpSymbolTable(p *runtime.Program) {
	fmt.Println("-- symbols --")
	p.Syms.Iterate(func(idx int, s symtab.Symbol) symtab.Symbol {
		fmt.Printf("  [%4d] hash=%08x scope=%d type=%d flags=%04x kctv=%d addr=%d\n",
			idx, s.Hash, s.ScopeID, s.Type, s.Flags, s.KCTV, s.Address)
		return s
	})
}

func dumpDisasm(p *runtime.Program) {
	fmt.Println("-- disassembly --")
	words := p.Compiler.Writer().HalfWords()
	for i, hw := range words {
		fmt.Printf("%4d: %04x  %s\n", i, hw, asm.Disassemble(hw))
	}
}

func dumpResourceTable(p *runtime.Program) {
	entries, err := p.Res.Entries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pinec: dumping resources: %v\n", err)
		return
	}
	fmt.Println("-- resources --")
	for _, e := range entries {
		fmt.Printf("  key=%08x offset=%d\n", e.Key, e.Offset)
	}
}
