// Package planner implements the short-horizon SE(3) trajectory optimizer.
//
// [Optimizer.Plan] turns the current state, a goal and the obstacle set into
// a [flight.Trajectory] of exactly Horizon samples spaced by Dt. The problem
// is condensed onto per-step accelerations (thrust = m·(a + g·ẑ)); positions
// and velocities are rolled out through the exact discrete dynamics, so
// sample 0 always equals the input state and the dynamics hold to rounding.
//
// # Solver
//
// Velocity, thrust, tilt and keep-out constraints enter as quadratic
// penalties with a weight that grows every iteration. Each iteration takes a
// block-diagonal Gauss-Newton step (one Cholesky solve per axis) and a
// backtracking line search on the penalised merit. MaxIterations bounds the
// work per call, which is what bounds latency.
//
// # Initialisation
//
// Every call picks one [InitMode]: ColdStart without a usable prior
// solution, WarmStart to shift the prior by one step, FastReplan after the
// goal moved.
//
// # Failure handling
//
// Plan never fails outwardly. When the solver's iterate is not usable an
// analytic straight-line or decelerate-to-hover trajectory is returned and
// the cause is recorded in the [Report].
package planner
