package main

import (
	"log/slog"
	"os"

	"hrleave/internal/app/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	if err := server.Run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
