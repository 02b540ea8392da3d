package review

// Item pairs a captured unit with its classification.
type Item struct {
	Unit  ChangeUnit
	Class Classification
}

// Batch is one or more units reviewed by a single backend call. A batch of
// one is an individual review.
type Batch struct {
	Index int
	Items []Item
}

// Paths returns the subject paths in submission order.
func (b Batch) Paths() []string {
	paths := make([]string, len(b.Items))
	for i, it := range b.Items {
		paths[i] = it.Unit.Path
	}
	return paths
}

// Critical reports whether any member was classified CRITICAL.
func (b Batch) Critical() bool {
	for _, it := range b.Items {
		if it.Class.Level == LevelCritical {
			return true
		}
	}
	return false
}

// Planner groups reviewable units for push-stage runs.
type Planner struct {
	// Threshold is the number of reviewable units at which batching starts.
	Threshold int
	// MaxSize caps the units per batch. Zero means no cap.
	MaxSize int
	// MaxPayloadChars closes a batch before its raw diff total would exceed it.
	MaxPayloadChars int
}

// Plan partitions items, which must already exclude SKIP units, into
// batches in submission order. Outside the push stage, or below the
// threshold, every item becomes its own batch.
func (p Planner) Plan(stage Stage, items []Item) []Batch {
	if len(items) == 0 {
		return nil
	}
	if stage != StagePrePush || p.Threshold <= 0 || len(items) < p.Threshold {
		batches := make([]Batch, len(items))
		for i, it := range items {
			batches[i] = Batch{Index: i, Items: []Item{it}}
		}
		return batches
	}

	var (
		batches []Batch
		current []Item
		size    int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		batches = append(batches, Batch{Index: len(batches), Items: current})
		current = nil
		size = 0
	}

	for _, it := range items {
		n := chars(it.Unit.DiffText)
		full := p.MaxSize > 0 && len(current) >= p.MaxSize
		overflow := p.MaxPayloadChars > 0 && len(current) > 0 && size+n > p.MaxPayloadChars
		if full || overflow {
			flush()
		}
		current = append(current, it)
		size += n
	}
	flush()

	return batches
}
