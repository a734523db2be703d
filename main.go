package main

import "github.com/ValentinKolb/dSess/cmd"

func main() {
	cmd.Execute()
}
