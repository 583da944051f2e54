package optimizer

// Registry returns one instance of every strategy, baseline first. The
// benchmark harness treats the first entry as the correctness reference.
func Registry(cfg Config) []Strategy {
	return []Strategy{
		NewThreshold(cfg),
		NewCoarseFine(cfg),
		NewBatched(cfg),
		NewPrecompiled(cfg),
	}
}
