package main

// Output format constants.
const (
	jsonFormat = "json"
	yamlFormat = "yaml"
	textFormat = "text"
)

// stdinArg selects standard input as the source file.
const stdinArg = "-"
