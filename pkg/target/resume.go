package target

import (
	"fmt"
	"strings"

	"github.com/mark-grimes/gdbremote-core/internal/gdbproto/client"
	"github.com/mark-grimes/gdbremote-core/internal/threads"
)

// StepKind is what a single thread should do on the next resume.
type StepKind int

const (
	ResumeContinue StepKind = iota
	ResumeStep
	ResumeStop
)

// ThreadResumeState is one thread's resume directive plus the signal
// number to deliver, if any.
type ThreadResumeState struct {
	TID    uint64
	Kind   StepKind
	Signal int
	HasSig bool
}

// ResumePlan is the set of per-thread resume directives computed for one
// resume() call.
type ResumePlan struct {
	States []ThreadResumeState
}

// BuildResumePlan assigns every thread in reg ResumeContinue, unless
// overridden points it at a different state — the "resume all others"
// default.
func BuildResumePlan(reg *threads.Registry, overridden map[uint64]ThreadResumeState) ResumePlan {
	var plan ResumePlan
	for _, t := range reg.All() {
		if s, ok := overridden[t.ID()]; ok {
			plan.States = append(plan.States, s)
			continue
		}
		plan.States = append(plan.States, ThreadResumeState{TID: t.ID(), Kind: ResumeContinue})
	}
	return plan
}

// allPlainContinue reports whether every state in the plan is a plain,
// unsignalled continue — the only case a bare "c" packet may be used for.
func (p ResumePlan) allPlainContinue() bool {
	for _, s := range p.States {
		if s.Kind != ResumeContinue || s.HasSig {
			return false
		}
	}
	return true
}

// BuildPacket renders the plan as the payload for a "c", "C", "s", "S", or
// "vCont" packet, given what the stub's vCont? probe reported. Plans that
// need no vCont (every thread a plain continue, or a single thread) get a
// legacy single-letter packet whatever caps says; any other plan fails
// with an error when caps lacks an action it uses.
func (p ResumePlan) BuildPacket(caps client.VContActions) ([]byte, error) {
	// An empty plan (no thread has been observed yet, e.g. the first
	// resume right after launch/attach, before any stop reply) trivially
	// satisfies allPlainContinue and falls through to a bare "c" below.
	if p.allPlainContinue() {
		return []byte("c"), nil
	}

	if len(p.States) == 1 {
		s := p.States[0]
		switch s.Kind {
		case ResumeContinue:
			if s.HasSig {
				return []byte(fmt.Sprintf("C%02x", s.Signal)), nil
			}
			return []byte("c"), nil
		case ResumeStep:
			if s.HasSig {
				return []byte(fmt.Sprintf("S%02x", s.Signal)), nil
			}
			return []byte("s"), nil
		case ResumeStop:
			return nil, fmt.Errorf("cannot resume a single thread into ResumeStop")
		}
	}

	var needed VContLetters
	for _, s := range p.States {
		switch {
		case s.Kind == ResumeContinue && s.HasSig:
			needed.C = true
		case s.Kind == ResumeContinue:
			needed.c = true
		case s.Kind == ResumeStep && s.HasSig:
			needed.S = true
		case s.Kind == ResumeStep:
			needed.s = true
		}
	}
	if (needed.c && !caps.Continue) || (needed.C && !caps.ContinueSignal) ||
		(needed.s && !caps.Step) || (needed.S && !caps.StepSignal) {
		return nil, fmt.Errorf("stub vCont actions do not cover this resume plan")
	}

	var b strings.Builder
	b.WriteString("vCont")
	for _, s := range p.States {
		b.WriteByte(';')
		switch {
		case s.Kind == ResumeContinue && s.HasSig:
			fmt.Fprintf(&b, "C%02x:%x", s.Signal, s.TID)
		case s.Kind == ResumeContinue:
			fmt.Fprintf(&b, "c:%x", s.TID)
		case s.Kind == ResumeStep && s.HasSig:
			fmt.Fprintf(&b, "S%02x:%x", s.Signal, s.TID)
		case s.Kind == ResumeStep:
			fmt.Fprintf(&b, "s:%x", s.TID)
		case s.Kind == ResumeStop:
			fmt.Fprintf(&b, "t:%x", s.TID)
		}
	}
	return []byte(b.String()), nil
}

// VContLetters records which vCont action letters a plan requires, used
// only to check against the stub's advertised capability set.
type VContLetters struct {
	c, C, s, S bool
}
