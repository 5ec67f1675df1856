package engine

// Effect is a declarative reply instruction for the transport. The engine
// never talks to the chat platform directly.
type Effect struct {
	Text string
	// Keyboard rows of suggested literal replies. One-time by convention.
	Keyboard    [][]string
	Placeholder string
	// RemoveKeyboard clears any reply keyboard shown earlier.
	RemoveKeyboard bool
}

func reply(text string) Effect {
	return Effect{Text: text}
}

func keyboard(text string, rows [][]string, placeholder string) Effect {
	return Effect{Text: text, Keyboard: rows, Placeholder: placeholder}
}

func clearKeyboard(text string) Effect {
	return Effect{Text: text, RemoveKeyboard: true}
}
