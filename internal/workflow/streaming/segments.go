// Package streaming implements C9's End-node streaming contract (§4.9):
// an End node pre-parses its templated output into ordered segments
// (literal or variable); a variable segment becomes emittable only once
// its depended-on node completes, and literal segments are emittable
// immediately. Tokens from an in-flight llm node feeding a segment are
// forwarded in order as they arrive. Segment order is preserved
// regardless of which upstream node finishes first (§4.9, REDESIGN
// FLAG "model segments explicitly; do not rely on event arrival
// order"), grounded in the teacher's fan-out-over-a-buffered-channel
// idiom (internal/orchestrator/kafka.go) adapted here to an ordered
// cursor instead of an unordered worker pool.
package streaming

// Segment is one ordered piece of an End node's output.
type Segment struct {
	Literal   string
	DependsOn string // node id; "" for literal segments (always ready)
}

// Assembler walks an End node's segment list in declared order,
// buffering chunks that arrive for segments not yet at the cursor and
// flushing them in order once the cursor reaches them.
type Assembler struct {
	segments []Segment
	cursor   int
	done     map[string]bool     // node ids whose full value has been received
	buffer   map[string][]string // node id -> chunks received before its segment was current
	final    map[string]string   // node id -> fully assembled value, once known
	flushed  map[string]bool     // node ids whose content has already been written to output (live-streamed or buffer-flushed)
	output   []byte
}

// NewAssembler builds an Assembler over segs.
func NewAssembler(segs []Segment) *Assembler {
	return &Assembler{
		segments: segs,
		done:     map[string]bool{},
		buffer:   map[string][]string{},
		final:    map[string]string{},
		flushed:  map[string]bool{},
	}
}

// Start emits every leading literal segment (and any already-resolved
// variable segments) up to the first still-pending dependency. Call
// once before feeding any chunks.
func (a *Assembler) Start() []string {
	return a.advance()
}

// Chunk records one incremental token from nodeID and returns any
// message events now emittable. Chunks for a node that is not currently
// at the cursor are buffered and flushed once the cursor reaches it.
func (a *Assembler) Chunk(nodeID, text string) []string {
	if a.atCursor(nodeID) {
		a.output = append(a.output, text...)
		a.flushed[nodeID] = true
		return []string{text}
	}
	a.buffer[nodeID] = append(a.buffer[nodeID], text)
	return nil
}

// Complete marks nodeID's value as fully known (covers non-streaming
// node kinds, and finalizes a streaming llm node once its last chunk
// has arrived) and returns any message events the completion unblocks.
func (a *Assembler) Complete(nodeID, fullValue string) []string {
	a.done[nodeID] = true
	a.final[nodeID] = fullValue
	return a.advance()
}

// Output returns the fully assembled string so far. It equals the
// final `end.output` once every segment has been emitted (§8 invariant
// 10: the concatenation of all message events equals the end event's
// output field).
func (a *Assembler) Output() string { return string(a.output) }

// Finished reports whether every segment has been emitted.
func (a *Assembler) Finished() bool { return a.cursor >= len(a.segments) }

func (a *Assembler) atCursor(nodeID string) bool {
	return a.cursor < len(a.segments) && a.segments[a.cursor].DependsOn == nodeID
}

// advance emits every segment starting at the cursor that is now
// ready: literals always; a variable segment's buffered chunks as soon
// as the cursor reaches it (the cursor moves past it only once its node
// is also Complete); and a Complete node's final value, unless that
// node's chunks were already written to output (live via Chunk or by an
// earlier flush), in which case only the cursor moves.
func (a *Assembler) advance() []string {
	var events []string
	for a.cursor < len(a.segments) {
		seg := a.segments[a.cursor]
		if seg.DependsOn == "" {
			a.output = append(a.output, seg.Literal...)
			events = append(events, seg.Literal)
			a.cursor++
			continue
		}
		if buffered, ok := a.buffer[seg.DependsOn]; ok && len(buffered) > 0 {
			for _, chunk := range buffered {
				a.output = append(a.output, chunk...)
				events = append(events, chunk)
			}
			a.flushed[seg.DependsOn] = true
			delete(a.buffer, seg.DependsOn)
			if a.done[seg.DependsOn] {
				a.cursor++
				continue
			}
			// Streamed value partially flushed but not yet complete:
			// stop here until more chunks or Complete arrives.
			return events
		}
		if a.done[seg.DependsOn] {
			if !a.flushed[seg.DependsOn] {
				val := a.final[seg.DependsOn]
				a.output = append(a.output, val...)
				events = append(events, val)
			}
			a.cursor++
			continue
		}
		// Segment's dependency hasn't produced anything yet; stop and
		// wait for the next Chunk/Complete call.
		break
	}
	return events
}
