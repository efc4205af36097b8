package main

import "github.com/greboid/actrun/cmd"

func main() {
	cmd.Execute()
}
