package consoles

type nullConsole struct{}

// NewNullConsole returns a console that discards everything.
func NewNullConsole() Console {
	return nullConsole{}
}

func (nullConsole) Printf(string, ...any)     {}
func (nullConsole) PushPrefix(string, ...any) {}
func (nullConsole) PopPrefix()                {}
