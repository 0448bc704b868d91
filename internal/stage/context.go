package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/freightmind/extractd/internal/transcript"
)

// Errors for context slot operations.
var (
	ErrSlotAlreadySet = errors.New("stage output already written")
	ErrUnknownSlot    = errors.New("unknown stage slot")
)

// TokenUsage is the cumulative metered cost of one run.
type TokenUsage struct {
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// slot holds one stage's output. done closes exactly once, when the slot is
// either populated or marked absent, so consumers can block on the specific
// upstream they need.
type slot struct {
	done   chan struct{}
	output Output // nil when absent
	absent bool
}

// Context is the run-scoped state shared by all stages in one extraction run.
//
// Slots are write-once: a stage writes its own output exactly once and reads
// only the outputs of its declared dependencies. Once written, an output is
// immutable for the remainder of the run. The token counter is the only
// state mutated by more than one stage and is updated atomically.
type Context struct {
	transcript *transcript.Transcript
	meta       transcript.RunMetadata

	mu    sync.Mutex
	slots map[string]*slot

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	costMicroUSD atomic.Int64
}

// NewContext creates a Context with one empty slot per stage name.
func NewContext(t *transcript.Transcript, meta transcript.RunMetadata, stageNames []string) *Context {
	slots := make(map[string]*slot, len(stageNames))
	for _, name := range stageNames {
		slots[name] = &slot{done: make(chan struct{})}
	}
	return &Context{
		transcript: t,
		meta:       meta,
		slots:      slots,
	}
}

// Transcript returns the immutable run transcript.
func (c *Context) Transcript() *transcript.Transcript { return c.transcript }

// Metadata returns the immutable run metadata.
func (c *Context) Metadata() transcript.RunMetadata { return c.meta }

// SetOutput records a stage's output. Compare-and-set-once: a second write
// to the same slot fails with ErrSlotAlreadySet.
func (c *Context) SetOutput(name string, out Output) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	select {
	case <-s.done:
		return fmt.Errorf("%w: %q", ErrSlotAlreadySet, name)
	default:
	}
	s.output = out
	close(s.done)
	return nil
}

// MarkAbsent records that a stage failed permanently and its slot will never
// be populated. Consumers unblock and observe absence.
func (c *Context) MarkAbsent(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}
	select {
	case <-s.done:
		return fmt.Errorf("%w: %q", ErrSlotAlreadySet, name)
	default:
	}
	s.absent = true
	close(s.done)
	return nil
}

// Output returns a completed stage output. ok is false when the slot is
// still pending or was marked absent.
func (c *Context) Output(name string) (Output, bool) {
	c.mu.Lock()
	s, ok := c.slots[name]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-s.done:
		if s.absent {
			return nil, false
		}
		return s.output, true
	default:
		return nil, false
	}
}

// Absent reports whether the slot terminated without an output.
func (c *Context) Absent(name string) bool {
	c.mu.Lock()
	s, ok := c.slots[name]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case <-s.done:
		return s.absent
	default:
		return false
	}
}

// WaitFor blocks until the named slot terminates or ctx is done. It returns
// the output (nil if the slot is absent) and whether an output is present.
// A consuming stage therefore always observes the dependency's final,
// immutable state, never a partial write.
func (c *Context) WaitFor(ctx context.Context, name string) (Output, bool, error) {
	c.mu.Lock()
	s, ok := c.slots[name]
	c.mu.Unlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	if s.absent {
		return nil, false, nil
	}
	return s.output, true, nil
}

// AddUsage atomically accumulates token counts and estimated cost.
func (c *Context) AddUsage(inputTokens, outputTokens int, costUSD float64) {
	c.inputTokens.Add(int64(inputTokens))
	c.outputTokens.Add(int64(outputTokens))
	c.costMicroUSD.Add(int64(costUSD * 1e6))
}

// Usage returns a snapshot of the cumulative run usage.
func (c *Context) Usage() TokenUsage {
	return TokenUsage{
		InputTokens:      c.inputTokens.Load(),
		OutputTokens:     c.outputTokens.Load(),
		EstimatedCostUSD: float64(c.costMicroUSD.Load()) / 1e6,
	}
}

// Typed slot accessors. Each returns nil when the slot is pending, absent,
// or holds a different variant.

func (c *Context) Classification() *Classification {
	out, ok := c.Output(NameClassification)
	if !ok {
		return nil
	}
	v, _ := out.(*Classification)
	return v
}

func (c *Context) SpeakerRoles() *SpeakerRoles {
	out, ok := c.Output(NameSpeakers)
	if !ok {
		return nil
	}
	v, _ := out.(*SpeakerRoles)
	return v
}

func (c *Context) Loads() *LoadList {
	out, ok := c.Output(NameLoads)
	if !ok {
		return nil
	}
	v, _ := out.(*LoadList)
	return v
}

func (c *Context) Rates() *RateList {
	out, ok := c.Output(NameRates)
	if !ok {
		return nil
	}
	v, _ := out.(*RateList)
	return v
}

func (c *Context) Carrier() *CarrierInfo {
	out, ok := c.Output(NameCarrierInfo)
	if !ok {
		return nil
	}
	v, _ := out.(*CarrierInfo)
	return v
}

func (c *Context) Shipper() *ShipperInfo {
	out, ok := c.Output(NameShipperInfo)
	if !ok {
		return nil
	}
	v, _ := out.(*ShipperInfo)
	return v
}

func (c *Context) Negotiation() *NegotiationOutcome {
	out, ok := c.Output(NameNegotiation)
	if !ok {
		return nil
	}
	v, _ := out.(*NegotiationOutcome)
	return v
}

func (c *Context) ActionItems() *ActionItems {
	out, ok := c.Output(NameActionItems)
	if !ok {
		return nil
	}
	v, _ := out.(*ActionItems)
	return v
}
