package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"vecbt/pkg/vecbt"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "vecbt-server base URL")
	symbol := flag.String("symbol", "", "only show runs for this symbol")
	strategy := flag.String("strategy", "", "only show runs for this strategy")
	limit := flag.Int("limit", 200, "maximum runs to load")
	flag.Parse()
	if a := os.Getenv("VECBT_ADDR"); a != "" && *addr == "http://localhost:8080" {
		*addr = a
	}

	client := vecbt.NewClient(*addr)
	filter := vecbt.RunFilter{Symbol: *symbol, Strategy: *strategy, Limit: *limit}

	p := tea.NewProgram(
		initialModel(client, filter),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
