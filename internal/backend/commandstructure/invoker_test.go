package commandstructure

import (
	"context"
	"errors"
	"testing"
)

func withRegistry(t *testing.T, registry *CommandRegistry) {
	t.Helper()
	original := DefaultRegistry
	DefaultRegistry = registry
	t.Cleanup(func() { DefaultRegistry = original })
}

func TestExecuteCommands_EmptyList(t *testing.T) {
	testData := []byte("test data")
	result, err := ExecuteCommands(context.Background(), testData, []CommandConfig{})
	if err != nil {
		t.Errorf("Expected no error for empty command list, got %v", err)
	}
	if string(result) != string(testData) {
		t.Error("Expected result to match input for empty command list")
	}
}

func TestExecuteCommands_UnknownCommand(t *testing.T) {
	withRegistry(t, NewCommandRegistry())

	configs := []CommandConfig{{Name: "UnknownCommand"}}
	if _, err := ExecuteCommands(context.Background(), []byte("test data"), configs); err == nil {
		t.Error("Expected error for unknown command")
	}
}

func TestExecuteCommands_InvalidCommandConfig(t *testing.T) {
	registry := NewCommandRegistry()
	err := registry.Register("TestCommand", func(params map[string]any) (Command, error) {
		if err := ValidateRequiredParams(params, []string{"required_param"}); err != nil {
			return nil, err
		}
		return newMockCommand("TestCommand"), nil
	})
	if err != nil {
		t.Fatalf("Failed to register test command: %v", err)
	}
	withRegistry(t, registry)

	configs := []CommandConfig{{Name: "TestCommand", Params: map[string]any{}}}
	if _, err := ExecuteCommands(context.Background(), []byte("test data"), configs); err == nil {
		t.Error("Expected error for invalid command configuration")
	}
}

func TestExecuteCommands_RunsInConfiguredOrder(t *testing.T) {
	registry := NewCommandRegistry()
	for _, name := range []string{"A", "B"} {
		suffix := "-" + name
		if err := registry.Register(name, func(map[string]any) (Command, error) {
			return appendingCommand(name, suffix), nil
		}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	withRegistry(t, registry)

	out, err := ExecuteCommands(context.Background(), []byte("img"), []CommandConfig{{Name: "B"}, {Name: "A"}})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(out) != "img-B-A" {
		t.Errorf("Expected 'img-B-A', got %q", out)
	}
}

func TestBuildInvoker_Names(t *testing.T) {
	registry := NewCommandRegistry()
	_ = registry.Register("First", func(map[string]any) (Command, error) { return newMockCommand("First"), nil })
	_ = registry.Register("Second", func(map[string]any) (Command, error) { return newMockCommand("Second"), nil })

	invoker, err := BuildInvoker(registry, []CommandConfig{{Name: "Second"}, {Name: "First"}})
	if err != nil {
		t.Fatalf("BuildInvoker error: %v", err)
	}
	names := invoker.Names()
	if len(names) != 2 || names[0] != "Second" || names[1] != "First" {
		t.Errorf("Expected [Second First], got %v", names)
	}
}

func TestCommandInvoker_EmptyCommandList(t *testing.T) {
	invoker := NewCommandInvoker([]Command{})
	testData := []byte("test data")
	result, err := invoker.Execute(context.Background(), testData)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if string(result) != string(testData) {
		t.Error("Expected result to match input for empty command list")
	}
}

func TestCommandInvoker_InvalidImageData(t *testing.T) {
	invoker := NewCommandInvoker([]Command{newMockCommandWithError("TestCommand", errors.New("invalid image data"))})
	if _, err := invoker.Execute(context.Background(), []byte("invalid image data")); err == nil {
		t.Error("Expected error for invalid image data")
	}
}

func TestCommandInvoker_MultipleCommands(t *testing.T) {
	invoker := NewCommandInvoker([]Command{
		appendingCommand("Command1", "-cmd1"),
		appendingCommand("Command2", "-cmd2"),
	})

	result, err := invoker.Execute(context.Background(), []byte("test"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(result) != "test-cmd1-cmd2" {
		t.Errorf("Expected 'test-cmd1-cmd2', got '%s'", result)
	}
}

func TestCommandInvoker_ErrorInMiddle(t *testing.T) {
	sentinel := errors.New("command 2 failed")
	invoker := NewCommandInvoker([]Command{
		appendingCommand("Command1", "-cmd1"),
		newMockCommandWithError("Command2", sentinel),
		appendingCommand("Command3", "-cmd3"),
	})

	_, err := invoker.Execute(context.Background(), []byte("test"))
	if !errors.Is(err, sentinel) {
		t.Fatalf("Expected wrapped command error, got %v", err)
	}
}

func TestCommandInvoker_CancelledContext(t *testing.T) {
	called := false
	cmd := &mockCommand{
		name: "Never",
		executeFunc: func(data []byte) ([]byte, error) {
			called = true
			return data, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCommandInvoker([]Command{cmd}).Execute(ctx, []byte("test"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("Expected command not to run after cancellation")
	}
}
