package main

import "github.com/Dipuraj1New/careerireland-portals/cmd"

func main() {
	cmd.Execute()
}
