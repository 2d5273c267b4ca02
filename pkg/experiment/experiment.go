// Package experiment runs free-field paradigms: Localization Accuracy,
// Spatial Unmasking and Numerosity Judgement.
//
// A Session carries the devices and the subject's calibration. Every trial
// waits for the subject to fixate the central speaker before anything is
// played, and every trial is written to the store exactly once.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-freefield/pkg/gaze"
	"github.com/teslashibe/go-freefield/pkg/processor"
	"github.com/teslashibe/go-freefield/pkg/speakers"
	"github.com/teslashibe/go-freefield/pkg/storage"
)

// Paradigm names as used on the command line.
const (
	NameLocalization = "la"
	NameUnmasking    = "su"
	NameNumerosity   = "nm"
)

// Paradigm is one experiment procedure.
type Paradigm interface {
	Name() string
	Run(ctx context.Context, s *Session) error
}

// Responder delivers button presses. *processor.ButtonBox is the hardware
// implementation.
type Responder interface {
	WaitForPress(ctx context.Context) (processor.Press, error)
}

// StimulusKind says what a response refers to.
type StimulusKind int

const (
	// KindPointing asks the subject to turn towards the target and press.
	KindPointing StimulusKind = iota + 1
	// KindReturn asks the subject to look back at the centre and press.
	KindReturn
	// KindIdentify asks which number word was heard (buttons 1-5).
	KindIdentify
	// KindCount asks how many talkers were heard.
	KindCount
	// KindCalibrate asks the subject to fixate the LED and press.
	KindCalibrate
)

// Stimulus describes what was just presented.
type Stimulus struct {
	Kind     StimulusKind
	Target   speakers.Speaker
	Level    float64
	Solution int
}

// StimulusAware responders are told what was presented before each wait.
// Simulated subjects use it to produce plausible answers.
type StimulusAware interface {
	Present(s Stimulus)
}

// EventType classifies session events.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventCalibrated      EventType = "calibrated"
	EventGate            EventType = "gate"
	EventTrial           EventType = "trial"
	EventThreshold       EventType = "threshold"
	EventWarning         EventType = "warning"
	EventSessionFinished EventType = "session_finished"
)

// Event is published to the observer (the dashboard) as the session runs.
type Event struct {
	Type      EventType          `json:"type"`
	SessionID uuid.UUID          `json:"session_id"`
	Paradigm  string             `json:"paradigm"`
	Time      time.Time          `json:"time"`
	Message   string             `json:"message,omitempty"`
	Trial     *storage.Trial     `json:"trial,omitempty"`
	Threshold *storage.Threshold `json:"threshold,omitempty"`
	Gate      *gaze.Event        `json:"gate,omitempty"`
}

// Observer receives session events.
type Observer func(Event)

// SubjectName returns the stored subject name for an id. Example sessions
// always use subject 99.
func SubjectName(id string, example bool) string {
	if example {
		return "99"
	}
	return fmt.Sprintf("sub%s", id)
}
