package types

import "fmt"

// Case is one registered test case. The harness runs each case's body inside
// its own isolated context, on the runtime's loop goroutine.
type Case struct {
	Name        string
	Description string
	Run         func(t *T)
}

// DisplayName returns the case's short description for reporting, falling
// back to its name.
func (c Case) DisplayName() string {
	if c.Description != "" {
		return c.Description
	}
	return c.Name
}

// Validate reports configuration errors that must be fatal before any test
// runs.
func (c Case) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("case name is required")
	}
	if c.Run == nil {
		return fmt.Errorf("case %q has no body", c.Name)
	}
	return nil
}
