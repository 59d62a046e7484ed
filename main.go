package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dte-go/dte/internal/editor"
)

// maxBytesLimit bounds a single buffer's storage, read from the
// DTE_MAX_MB environment variable; 0 means unlimited. This mirrors
// the teacher's BEGB-environment-variable memory budget, narrowed
// from the whole process to one buffer since blockstore.MaxBytes is
// per-store.
var maxBytesLimit = calcMaxBytes()

func calcMaxBytes() int64 {
	e := os.Getenv("DTE_MAX_MB")
	if e == "" {
		return 0
	}
	var mb int64
	if _, err := fmt.Sscanf(e, "%d", &mb); err != nil || mb < 0 {
		slog.Warn("malformed DTE_MAX_MB, ignoring", "value", e)
		return 0
	}
	return mb * 1024 * 1024
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dte <file>")
		os.Exit(1)
	}
	path := os.Args[1]

	e, err := editor.Open(path, nil)
	if err != nil {
		slog.Error("open failed", "path", path, "err", err)
		os.Exit(1)
	}
	defer e.Close()
	e.Buf.Store.MaxBytes = maxBytesLimit

	for i := 0; i < e.NumLines(); i++ {
		os.Stdout.Write(e.Line(i))
	}
}
