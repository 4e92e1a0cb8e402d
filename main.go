package main

import "github.com/andresmejia3/facefolio/cmd"

func main() {
	cmd.Execute()
}
