// sgrep-evals benchmarks sgrep against the CodeSearchNet relevance annotations.
//
// Usage:
//
//	sgrep-evals fetch
//	sgrep-evals run > outcomes.jsonl
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/XiaoConstantine/sgrep-evals/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
