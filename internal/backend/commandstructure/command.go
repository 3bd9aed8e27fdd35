package commandstructure

// Command is one step of the image pipeline. It receives encoded image bytes
// and returns the encoded result.
type Command interface {
	Name() string
	Execute(imageData []byte) ([]byte, error)
}

// CommandFactory creates a command from loosely typed parameters
type CommandFactory func(params map[string]any) (Command, error)

// CommandConfig names a registered command and the parameters to build it with
type CommandConfig struct {
	Name   string         `json:"name" yaml:"name"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}
