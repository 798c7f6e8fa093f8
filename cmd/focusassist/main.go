package main

import "github.com/bryanchriswhite/FocusAssist/cmd/focusassist/commands"

func main() {
	commands.Execute()
}
