package main

import "github.com/MeKo-Tech/netmap/internal/cmd"

func main() {
	cmd.Execute()
}
