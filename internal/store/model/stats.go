package model

type CorpusStats struct {
	// UnitsByPhase is the number of stored units per phase.
	UnitsByPhase map[int]int
	// JobsByState is the number of job records per state.
	JobsByState   map[string]int
	OpenManifests int
	Completions   int
}
