package main

import "github.com/cynwrig/synctube/internal/cli"

func main() {
	cli.Execute()
}
