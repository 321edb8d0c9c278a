package sim

// Engine defines the minimal surface area exposed to non-simulation callers.
type Engine interface {
	Apply([]Command) error
	Step(dt float64)
	Snapshot() Snapshot
}

// EngineCore is the session-side contract the loop drives. It extends Engine
// with the dependency accessor the loop uses for clocks, logging, and
// metrics.
type EngineCore interface {
	Engine
	Deps() Deps
}
