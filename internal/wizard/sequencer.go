// Package wizard orchestrates the multi-step account-setup flow:
// step sequencing, session-status reconciliation, and the waiting
// states that pair a one-shot check with a live event listener.
package wizard

import (
	"errors"
	"sync"
)

// Common sequencer errors.
var (
	ErrStepOutOfRange = errors.New("step index out of range")
)

// StepDescriptor describes one configured wizard step. Immutable.
type StepDescriptor struct {
	Index int
	Name  string
	Title string
}

// Step names for the account-setup flow.
const (
	StepWelcome    = "welcome"
	StepPanMobile  = "pan-mobile"
	StepOTP        = "otp"
	StepSelectData = "select-data"
	StepLinkBank   = "link-bank"
	StepFetchData  = "fetch-data"
	StepFinish     = "finish"
)

// SetupSteps is the ordered step list of the account-setup wizard.
func SetupSteps() []StepDescriptor {
	return []StepDescriptor{
		{Index: 0, Name: StepWelcome, Title: "Welcome"},
		{Index: 1, Name: StepPanMobile, Title: "Your info"},
		{Index: 2, Name: StepOTP, Title: "Verification"},
		{Index: 3, Name: StepSelectData, Title: "Select data"},
		{Index: 4, Name: StepLinkBank, Title: "Link your bank"},
		{Index: 5, Name: StepFetchData, Title: "Fetching data"},
		{Index: 6, Name: StepFinish, Title: "Finish"},
	}
}

// LinkBankStepIndex is where a returning consent callback lands.
const LinkBankStepIndex = 4

// Sequencer holds the current step index over an ordered step list.
// Index len(steps) means the flow is complete and the host renders a
// terminal view instead of indexing the list.
type Sequencer struct {
	mu      sync.Mutex
	steps   []StepDescriptor
	current int

	// onTransition runs after every index change, outside step logic.
	onTransition func(from, to int)
}

// NewSequencer creates a sequencer positioned at step 0.
func NewSequencer(steps []StepDescriptor) *Sequencer {
	return &Sequencer{steps: steps}
}

// OnTransition registers a hook invoked after every index change.
func (s *Sequencer) OnTransition(fn func(from, to int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTransition = fn
}

// Index returns the current step index.
func (s *Sequencer) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Current returns the active step descriptor. ok is false once the
// flow is complete.
func (s *Sequencer) Current() (StepDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current >= len(s.steps) {
		return StepDescriptor{}, false
	}
	return s.steps[s.current], true
}

// Completed reports whether the index has passed the last step.
func (s *Sequencer) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current >= len(s.steps)
}

// GoTo jumps to an explicit index within [0, len(steps)].
func (s *Sequencer) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index > len(s.steps) {
		return ErrStepOutOfRange
	}
	s.move(index)
	return nil
}

// Next advances one step. Validation is the current step's own
// responsibility; the sequencer is a bounded index increment.
func (s *Sequencer) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current < len(s.steps) {
		s.move(s.current + 1)
	}
	return s.current
}

// Back retreats one step, never below 0. At index 0 the call is a
// no-op and the second return is false; the host reinterprets that as
// "exit wizard" rather than an internal transition.
func (s *Sequencer) Back() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == 0 {
		return 0, false
	}
	s.move(s.current - 1)
	return s.current, true
}

func (s *Sequencer) move(to int) {
	from := s.current
	s.current = to
	if s.onTransition != nil && from != to {
		s.onTransition(from, to)
	}
}

// Len returns the number of configured steps.
func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
